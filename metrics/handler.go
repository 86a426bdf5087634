package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/common/expfmt"
)

// ServeHTTP answers GET on the configured path with the text exposition.
// Anything else gets a plain-text 404.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || r.URL.Path != m.cfg.Path {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	body, err := m.render()
	if err != nil && len(body) == 0 {
		m.logError(r.Context(), "failed to gather metrics", err)
		http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Text renders every registered metric in the text exposition format.
func (m *Metrics) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	body, err := m.render()
	return string(body), err
}

// render gathers the registry and encodes it. A gather error still returns
// whatever families could be collected.
func (m *Metrics) render() ([]byte, error) {
	families, gatherErr := m.Registry.Gather()

	var buf bytes.Buffer
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, family); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", family.GetName(), err)
		}
	}
	if gatherErr != nil {
		return buf.Bytes(), fmt.Errorf("failed to gather metrics: %w", gatherErr)
	}
	return buf.Bytes(), nil
}
