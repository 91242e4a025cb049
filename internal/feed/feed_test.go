package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestIsRelevant(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"newsletter", "New from Acme Weekly: Ten ideas", true},
		{"leading space", "  New from Acme Weekly", true},
		{"reaction", "Jane Doe liked your post", false},
		{"prefix mid text", "Jane shared New from Acme", false},
		{"case differs", "new from Acme Weekly", false},
		{"empty", "", false},
		{"blank", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRelevant(tt.text, DefaultRelevancePrefix); got != tt.want {
				t.Errorf("IsRelevant(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}

	if IsRelevant("New from Acme", "") {
		t.Error("empty prefix must never match")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		ordinal, before, after int
		want                   Status
	}{
		{3, 5, 5, Found},
		{6, 5, 6, Found},
		{8, 5, 7, NotYetRendered},
		{8, 7, 7, Exhausted},
		{1, 0, 0, Exhausted},
	}
	for _, tt := range tests {
		if got := classify(tt.ordinal, tt.before, tt.after); got != tt.want {
			t.Errorf("classify(%d, %d, %d) = %v, want %v", tt.ordinal, tt.before, tt.after, got, tt.want)
		}
	}
}

func TestStatusString(t *testing.T) {
	for st, want := range map[Status]string{
		Found:          "found",
		NotYetRendered: "not_yet_rendered",
		Exhausted:      "exhausted",
		Status(42):     "unknown",
	} {
		if got := st.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(st), got, want)
		}
	}
}

// fakePage renders items in batches: every scroll reveals up to batch more.
type fakePage struct {
	items    []rawItem
	rendered int
	batch    int
	scrolls  int
	itemErr  error
}

func (p *fakePage) Open(context.Context, string) error { return nil }

func (p *fakePage) Count(context.Context) (int, error) { return p.rendered, nil }

func (p *fakePage) Item(_ context.Context, ordinal int) (rawItem, error) {
	if p.itemErr != nil {
		return rawItem{}, p.itemErr
	}
	if ordinal < 1 || ordinal > p.rendered {
		return rawItem{Missing: true}, nil
	}
	return p.items[ordinal-1], nil
}

func (p *fakePage) ScrollToBottom(context.Context) error {
	p.scrolls++
	p.rendered = min(p.rendered+p.batch, len(p.items))
	return nil
}

func newFakePage(n, rendered, batch int) *fakePage {
	items := make([]rawItem, n)
	for i := range items {
		items[i] = rawItem{Text: "Someone liked your post", URL: "https://www.linkedin.com/feed/update/" + string(rune('a'+i))}
	}
	items[0] = rawItem{Text: "New from Acme Weekly", URL: "https://www.linkedin.com/pulse/acme"}
	return &fakePage{items: items, rendered: rendered, batch: batch}
}

func TestProbeRenderedItem(t *testing.T) {
	p := newFakePage(5, 5, 5)
	s := newScanner(p, Options{}, zerolog.Nop())

	res, err := s.Probe(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Found {
		t.Fatalf("status = %v, want found", res.Status)
	}
	if !res.Item.Relevant || res.Item.Index != 1 || res.Item.URL != "https://www.linkedin.com/pulse/acme" {
		t.Errorf("unexpected item %+v", res.Item)
	}
	if p.scrolls != 0 {
		t.Errorf("scrolled %d times for a rendered item", p.scrolls)
	}

	res, _ = s.Probe(context.Background(), 2)
	if res.Item.Relevant {
		t.Error("reaction notification reported relevant")
	}
}

func TestProbeLazyLoad(t *testing.T) {
	p := newFakePage(12, 5, 3)
	s := newScanner(p, Options{}, zerolog.Nop())

	res, err := s.Probe(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Found {
		t.Fatalf("status = %v, want found after one scroll", res.Status)
	}

	// 8 rendered, the next scroll reveals 3 more: growth without reaching 12.
	res, _ = s.Probe(context.Background(), 12)
	if res.Status != NotYetRendered {
		t.Fatalf("status = %v, want not_yet_rendered", res.Status)
	}
	res, _ = s.Probe(context.Background(), 12)
	if res.Status != Found {
		t.Fatalf("status = %v, want found on retry", res.Status)
	}
}

func TestProbeExhausted(t *testing.T) {
	p := newFakePage(7, 7, 5)
	s := newScanner(p, Options{}, zerolog.Nop())

	res, err := s.Probe(context.Background(), 8)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Exhausted {
		t.Fatalf("status = %v, want exhausted", res.Status)
	}
	if p.scrolls != 1 {
		t.Errorf("scrolls = %d, want 1", p.scrolls)
	}
}

func TestProbeUnreadableItemIsNotRelevant(t *testing.T) {
	p := newFakePage(3, 3, 0)
	p.itemErr = errors.New("detached node")
	s := newScanner(p, Options{}, zerolog.Nop())

	res, err := s.Probe(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Found || res.Item.Relevant {
		t.Errorf("got %+v, want found and not relevant", res)
	}
}
