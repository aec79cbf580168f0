package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"secureflow/internal/storage"
)

var errBadRequest = errors.New("bad request")

// parseID reads the {id} path segment.
func parseID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id inválido %q", errBadRequest, raw)
	}
	return id, nil
}

// decodeObject reads a JSON object body. An empty body is an empty object.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	m := map[string]any{}
	if err := json.NewDecoder(body).Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return m, nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: JSON inválido: %v", errBadRequest, err)
	}
	return m, nil
}

// filterFromQuery reads ?mes= or ?dia= for one period and ?de= / ?ate= for
// an inclusive range.
func filterFromQuery(r *http.Request) storage.Filter {
	q := r.URL.Query()
	period := q.Get("mes")
	if period == "" {
		period = q.Get("dia")
	}
	return storage.Filter{
		Period: period,
		From:   q.Get("de"),
		To:     q.Get("ate"),
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
