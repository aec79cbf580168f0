package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"secureflow/internal/core"
	"secureflow/internal/ingest"
	"secureflow/internal/log"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleImport ingests the workbook posted in the "file" form field.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParseRecordKind(r.PathValue("kind"))
	if err != nil {
		fail(w, r, log.OpImport, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, _, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		fail(w, r, log.OpImport, ingest.ErrMissingFile)
		return
	case err != nil:
		fail(w, r, log.OpImport, err)
		return
	}
	defer file.Close()

	res, err := s.imports.ImportFile(r.Context(), kind, file)
	if err != nil {
		fail(w, r, log.OpImport, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		okBody
		Inserted int    `json:"inserted"`
		Sheets   int    `json:"sheets"`
		BatchID  string `json:"batch_id"`
	}{okBody{OK: true, Msg: res.Message}, res.Inserted, res.Sheets, res.BatchID})
}

// labelPattern bounds what ends up in the download file name.
var labelPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{0,32}$`)

// handleExport renders the rows whose period lies in
// [data_inicio, data_fim] as an .xlsx download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("kind")
	kind, err := core.ParseRecordKind(label)
	if err != nil {
		fail(w, r, log.OpExport, err)
		return
	}
	if !labelPattern.MatchString(label) {
		label = string(kind)
	}
	body, err := decodeObject(w, r)
	if err != nil {
		fail(w, r, log.OpExport, err)
		return
	}
	from, to := stringField(body, "data_inicio"), stringField(body, "data_fim")
	if !labelPattern.MatchString(from) || !labelPattern.MatchString(to) {
		fail(w, r, log.OpExport, fmt.Errorf("%w: período inválido", errBadRequest))
		return
	}

	var buf bytes.Buffer
	rows, err := s.exports.Export(r.Context(), kind, from, to, &buf)
	if err != nil {
		fail(w, r, log.OpExport, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", xlsxContentType)
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_%s_%s.xlsx"`, label, from, to))
	h.Set("Content-Length", strconv.Itoa(buf.Len()))
	h.Set("X-Export-Rows", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
