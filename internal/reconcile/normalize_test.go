package reconcile

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Q3 Report", "q3report"},
		{"《健康谷路》", "健康谷路"},
		{"「政策」: 最新版", "政策最新版"},
		{"Policy (2024) [draft]", "policy2024draft"},
		{"“Quoted” 'name'", "quotedname"},
		{"a/b\\c｜d", "abcd"},
		{"snake_case-and—dash", "snakecaseanddash"},
		{"  tabs\tand\nnewlines　ideographic  ", "tabsandnewlinesideographic"},
		{"你好，世界！", "你好世界"},
		{"end...", "end"},
		{"", ""},
		{"()[]{}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	samples := []string{
		"Latest Policy", "《健康谷路》", "ÀÉÎ Õ", "İstanbul", "ǅemal", "ΣΊΣΥΦΟΣ", "a - b _ c", "",
	}
	for _, s := range samples {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), "input %q", s)
	}

	property := func(s string) bool {
		once := Normalize(s)
		return Normalize(once) == once
	}
	assert.NoError(t, quick.Check(property, &quick.Config{MaxCount: 2000}))
}
