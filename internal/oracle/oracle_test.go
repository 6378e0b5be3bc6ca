package oracle

import (
	"context"
	"errors"
	"testing"
)

func TestStaticDefaultsToOneInsight(t *testing.T) {
	got, err := NewStatic().Analyze(context.Background(), Request{DatasetID: 1})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(got) != 1 || got[0] != DefaultInsight {
		t.Errorf("got %+v, want the default insight", got)
	}
}

func TestStaticReturnsCopy(t *testing.T) {
	s := NewStatic(Insight{Text: "a", Confidence: 0.5}, Insight{Text: "b", Confidence: 0.6})
	got, err := s.Analyze(context.Background(), Request{DatasetID: 1})
	if err != nil {
		t.Fatal(err)
	}
	got[0].Text = "mutated"
	if s.Insights[0].Text != "a" {
		t.Error("caller mutation leaked into the analyzer")
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestStaticHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStatic().Analyze(ctx, Request{DatasetID: 7})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFunc(t *testing.T) {
	var seen Request
	a := Func(func(_ context.Context, req Request) ([]Insight, error) {
		seen = req
		return nil, errors.New("model unavailable")
	})
	if _, err := a.Analyze(context.Background(), Request{DatasetID: 3, Version: 2}); err == nil {
		t.Fatal("expected error")
	}
	if seen.DatasetID != 3 || seen.Version != 2 {
		t.Errorf("request = %+v", seen)
	}
}
