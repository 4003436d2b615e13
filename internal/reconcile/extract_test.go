package reconcile

import (
	"testing"

	"github.com/raphaelgruber/ragchat/internal/config"
	"github.com/stretchr/testify/assert"
)

func defaultExtractor() Extractor {
	return NewExtractor(config.DefaultIDFields, config.DefaultTitleFields)
}

func TestExtractIDFromEachShape(t *testing.T) {
	shapes := []struct {
		name string
		body string
	}{
		{"meta.chat_id", `{"ok":true,"meta":{"chat_id":"2024-05-01-120000","title":"x"}}`},
		{"meta.id", `{"ok":true,"meta":{"id":"2024-05-01-120000"}}`},
		{"chat_id", `{"chat_id":"2024-05-01-120000"}`},
		{"id", `{"id":"2024-05-01-120000"}`},
		{"data.chat_id", `{"data":{"chat_id":"2024-05-01-120000"}}`},
		{"data.id", `{"data":{"id":"2024-05-01-120000"}}`},
		{"session_id", `{"reply":"hi","session_id":"2024-05-01-120000"}`},
		{"sessionId", `{"reply":"hi","sessionId":"2024-05-01-120000"}`},
	}

	e := defaultExtractor()
	for _, tt := range shapes {
		t.Run(tt.name, func(t *testing.T) {
			res, m := e.Extract([]byte(tt.body), Result{}, "local")
			assert.Equal(t, "2024-05-01-120000", res.ServerID)
			assert.Equal(t, tt.name, m.IDStrategy)
		})
	}
}

func TestExtractPriorityOrder(t *testing.T) {
	body := `{"id":"top","meta":{"chat_id":"nested"}}`
	res, m := defaultExtractor().Extract([]byte(body), Result{}, "")
	assert.Equal(t, "nested", res.ServerID)
	assert.Equal(t, "meta.chat_id", m.IDStrategy)
}

func TestExtractFallbacks(t *testing.T) {
	e := defaultExtractor()

	tests := []struct {
		name       string
		body       string
		prev       Result
		localTitle string
		want       Result
	}{
		{
			name:       "nothing matches keeps previous id",
			body:       `{"ok":true}`,
			prev:       Result{ServerID: "known", Title: "kept"},
			localTitle: "derived",
			want:       Result{ServerID: "known", Title: "kept"},
		},
		{
			name:       "nothing matches and nothing known",
			body:       `{"ok":true}`,
			localTitle: "derived",
			want:       Result{Title: "derived"},
		},
		{
			name:       "invalid json",
			body:       `<html>502</html>`,
			prev:       Result{ServerID: "known"},
			localTitle: "derived",
			want:       Result{ServerID: "known", Title: "derived"},
		},
		{
			name: "empty and non-string values are skipped",
			body: `{"meta":{"chat_id":"","id":null},"chat_id":{"nested":true},"id":"real"}`,
			want: Result{ServerID: "real"},
		},
		{
			name: "numeric id keeps digits",
			body: `{"id":12345678901234567890}`,
			want: Result{ServerID: "12345678901234567890"},
		},
		{
			name:       "title from response wins over local",
			body:       `{"meta":{"chat_id":"c","title":"2024年05月01日12時00分"}}`,
			localTitle: "derived",
			want:       Result{ServerID: "c", Title: "2024年05月01日12時00分"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := e.Extract([]byte(tt.body), tt.prev, tt.localTitle)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCustomFieldOrder(t *testing.T) {
	e := NewExtractor([]string{"result.chat.key"}, []string{"result.chat.name"})
	body := `{"chat_id":"ignored","result":{"chat":{"key":"k1","name":"n1"}}}`

	res, m := e.Extract([]byte(body), Result{}, "")
	assert.Equal(t, Result{ServerID: "k1", Title: "n1"}, res)
	assert.Equal(t, Match{IDStrategy: "result.chat.key", TitleStrategy: "result.chat.name"}, m)
}
