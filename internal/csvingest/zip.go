package csvingest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"github.com/redgrouse/backend/internal/apperror"
)

// maxSizeRatio bounds how far the ZIP's declared uncompressed size may
// diverge from reality, as a defence against zip-bomb style headers.
const maxSizeRatio = 1.1

// ExtractCSV opens a ZIP archive and eagerly decompresses its single .csv
// member into memory, returning a reader over the result. Decompression is
// done in full here, synchronously, rather than lazily as the caller reads —
// callers bound this call's wall-clock cost with a timeout, which only works
// if the actual inflate work happens inside the call. The ZIP wrapper is an
// external collaborator per the ingestion contract, so this uses archive/zip
// directly rather than a third-party parser.
func ExtractCSV(r io.ReaderAt, size int64) (io.ReadCloser, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, apperror.BadRequestf(err, "invalid ZIP archive")
	}

	var csvFile *zip.File
	for _, f := range zr.File {
		if len(f.Name) > 4 && f.Name[len(f.Name)-4:] == ".csv" {
			if csvFile != nil {
				return nil, apperror.BadRequest("ZIP archive must contain exactly one .csv file")
			}
			csvFile = f
		}
	}
	if csvFile == nil {
		return nil, apperror.BadRequest("ZIP archive does not contain a .csv file")
	}

	if csvFile.UncompressedSize64 > MaxTotalBytes {
		return nil, apperror.BadRequest("ZIP archive's CSV member exceeds maximum size of 50 MiB")
	}

	rc, err := csvFile.Open()
	if err != nil {
		return nil, apperror.Internalf(err, "failed to open ZIP member")
	}
	defer rc.Close()

	limit := uint64(float64(csvFile.UncompressedSize64) * maxSizeRatio)
	if limit < csvFile.UncompressedSize64 {
		limit = csvFile.UncompressedSize64
	}

	data, err := io.ReadAll(io.LimitReader(rc, int64(limit)+1))
	if err != nil {
		return nil, apperror.Internalf(err, "failed to extract ZIP member")
	}
	if uint64(len(data)) > limit {
		return nil, apperror.BadRequest(fmt.Sprintf("ZIP member decompressed beyond its declared size by more than %.0f%%", (maxSizeRatio-1)*100))
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}
