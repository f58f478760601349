package openai

import "testing"

func TestParseCategories(t *testing.T) {
	ids := []string{"m1", "m2", "m3"}

	tests := []struct {
		name    string
		content string
		want    map[string]string
	}{
		{
			name:    "wrapped results object",
			content: `{"results": [{"id": "m1", "category": "crypto", "confidence": 0.95}, {"id": "m2", "category": "sports", "confidence": 0.8}]}`,
			want:    map[string]string{"m1": "crypto", "m2": "sports"},
		},
		{
			name:    "bare array",
			content: `[{"id": "m1", "category": "politics", "confidence": 0.9}]`,
			want:    map[string]string{"m1": "politics"},
		},
		{
			name:    "array buried in prose",
			content: "Here are the categorizations you asked for:\n[{\"id\": \"m1\", \"category\": \"tech\", \"confidence\": 0.85}]\nLet me know if you need more.",
			want:    map[string]string{"m1": "tech"},
		},
		{
			name:    "flat id to category object",
			content: `{"m1": "business", "m2": "culture"}`,
			want:    map[string]string{"m1": "business", "m2": "culture"},
		},
		{
			name:    "numeric ids",
			content: `{"results": [{"id": 5, "category": "news"}]}`,
			want:    map[string]string{},
		},
		{
			name:    "regex pair extraction from broken json",
			content: `{"results": [{"id": "m1", "category": "crypto", "confidence": 0.9}, {"id": "m2", "category": "sports"`,
			want:    map[string]string{"m1": "crypto", "m2": "sports"},
		},
		{
			name:    "line heuristic",
			content: "m1 looks like crypto to me\nm2: definitely sports",
			want:    map[string]string{"m1": "crypto", "m2": "sports"},
		},
		{
			name:    "unknown ids and categories dropped",
			content: `{"results": [{"id": "zz", "category": "crypto"}, {"id": "m1", "category": "weather"}]}`,
			want:    map[string]string{},
		},
		{
			name:    "garbage yields nothing",
			content: "I could not categorize these I am sorry",
			want:    map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategories(tt.content, ids)
			if len(got) != len(tt.want) {
				t.Fatalf("parseCategories() = %v, want categories %v", got, tt.want)
			}
			for id, cat := range tt.want {
				if got[id].Category != cat {
					t.Errorf("id %s category = %q, want %q", id, got[id].Category, cat)
				}
			}
		})
	}
}

func TestParseCategoriesConfidence(t *testing.T) {
	got := parseCategories(`{"results": [{"id": "m1", "category": "crypto", "confidence": 0.42}]}`, []string{"m1"})
	if got["m1"].Confidence != 0.42 {
		t.Errorf("confidence = %v, want 0.42 passed through", got["m1"].Confidence)
	}

	got = parseCategories(`{"results": [{"id": "m1", "category": "crypto"}]}`, []string{"m1"})
	if got["m1"].Confidence != 1 {
		t.Errorf("missing confidence = %v, want default 1", got["m1"].Confidence)
	}
}
