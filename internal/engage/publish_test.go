package engage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type fakeComposer struct {
	fail map[string]error

	steps  []string
	url    string
	typed  string
	closed bool
}

func (p *fakeComposer) step(name string) error {
	p.steps = append(p.steps, name)
	return p.fail[name]
}

func (p *fakeComposer) Open(_ context.Context, url string) error {
	p.url = url
	return p.step("open")
}

func (p *fakeComposer) StartPost(context.Context) error { return p.step("start") }

func (p *fakeComposer) TypePost(_ context.Context, text string) error {
	p.typed = text
	return p.step("type")
}

func (p *fakeComposer) SubmitPost(context.Context) error { return p.step("submit") }

func (p *fakeComposer) Close() { p.closed = true }

func newTestPublisher(p *fakeComposer) *Publisher {
	pub := NewPublisher(nil, "https://www.linkedin.com/feed/", Options{}, zerolog.Nop())
	pub.newPage = func() composerPage { return p }
	return pub
}

func TestPublish(t *testing.T) {
	p := &fakeComposer{}
	if err := newTestPublisher(p).Publish(context.Background(), "  Hello, I am new on LinkedIn!\n"); err != nil {
		t.Fatal(err)
	}
	if s := strings.Join(p.steps, ","); s != "open,start,type,submit" {
		t.Errorf("steps = %s", s)
	}
	if p.url != "https://www.linkedin.com/feed/" {
		t.Errorf("opened %s", p.url)
	}
	if p.typed != "Hello, I am new on LinkedIn!" {
		t.Errorf("typed = %q", p.typed)
	}
	if !p.closed {
		t.Error("tab left open")
	}
}

func TestPublishEmptyText(t *testing.T) {
	p := &fakeComposer{}
	if err := newTestPublisher(p).Publish(context.Background(), " \n\t"); !errors.Is(err, ErrEmptyPost) {
		t.Fatalf("err = %v, want ErrEmptyPost", err)
	}
	if len(p.steps) != 0 {
		t.Errorf("browser used for an empty post: %v", p.steps)
	}
}

func TestPublishStepFailures(t *testing.T) {
	steps := []string{"open", "start", "type", "submit"}
	for i, failing := range steps {
		t.Run(failing, func(t *testing.T) {
			p := &fakeComposer{fail: map[string]error{failing: errors.New("timeout")}}
			err := newTestPublisher(p).Publish(context.Background(), "hello")

			if !errors.Is(err, ErrElement) {
				t.Fatalf("err = %v, want ErrElement", err)
			}
			if s, want := strings.Join(p.steps, ","), strings.Join(steps[:i+1], ","); s != want {
				t.Errorf("steps = %s, want %s", s, want)
			}
			if !p.closed {
				t.Error("tab left open")
			}
		})
	}
}
