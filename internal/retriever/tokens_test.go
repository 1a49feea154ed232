package retriever

import "testing"

func TestTokenizeASCII(t *testing.T) {
	tokens := tokenize("The connection pool is exhausted")
	for _, want := range []string{"connection", "pool", "exhausted"} {
		if !tokens[want] {
			t.Errorf("expected token %q, got %v", want, tokens)
		}
	}
	for _, stop := range []string{"the", "is"} {
		if tokens[stop] {
			t.Errorf("expected stop word %q to be dropped, got %v", stop, tokens)
		}
	}
}

func TestTokenizeCJK(t *testing.T) {
	tokens := tokenize("查询变慢，原来几秒现在要半分钟")
	if len(tokens) == 0 {
		t.Fatal("expected non-empty token set for Chinese text")
	}
	for _, want := range []string{"查", "询", "变", "慢"} {
		if !tokens[want] {
			t.Errorf("expected CJK rune token %q, got %v", want, tokens)
		}
	}
}

func TestTokenizeMixedCJKAndASCII(t *testing.T) {
	tokens := tokenize("IO 正常，索引涨了 6 倍，另外发现很多慢查询")
	if !tokens["io"] {
		t.Errorf("expected ASCII word token \"io\", got %v", tokens)
	}
	if !tokens["正"] || !tokens["常"] {
		t.Errorf("expected CJK rune tokens from 正常, got %v", tokens)
	}
}

func TestKeywordHitsCJK(t *testing.T) {
	query := tokenize("索引")
	hits := keywordHits(query, "缺少索引导致查询变慢")
	if hits == 0 {
		t.Errorf("expected at least one keyword hit between 索引 and the text containing it")
	}
}
