package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBuildRequests_RoundRobinScores(t *testing.T) {
	bodies, target, err := buildRequests(options{baseURL: "http://svc/", scores: []int{85, 10}})
	if err != nil {
		t.Fatal(err)
	}
	if target != "http://svc/execute" {
		t.Fatalf("unexpected target %q", target)
	}
	if len(bodies) != 2 {
		t.Fatalf("expected 2 bodies, got %d", len(bodies))
	}

	var payload struct {
		Workflow json.RawMessage `json:"workflow"`
		Context  map[string]any  `json:"context"`
	}
	if err := json.Unmarshal(bodies[1], &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Context["riskScore"] != float64(10) {
		t.Fatalf("expected riskScore 10, got %#v", payload.Context["riskScore"])
	}
	if !bytes.Contains(payload.Workflow, []byte(`"risk"`)) {
		t.Fatalf("expected the built-in workflow in the body")
	}
}

func TestBuildRequests_Template(t *testing.T) {
	bodies, target, err := buildRequests(options{baseURL: "http://svc", template: "country-kyc", scores: []int{1}})
	if err != nil {
		t.Fatal(err)
	}
	if target != "http://svc/templates/country-kyc/execute" {
		t.Fatalf("unexpected target %q", target)
	}
	if strings.Contains(string(bodies[0]), "workflow") {
		t.Fatalf("template runs must not carry a workflow: %s", bodies[0])
	}
}

func TestSend_ReadsEndNode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"summary":{"visited_path":["collect","risk","high"]}}}`))
	}))
	defer srv.Close()

	s := send(context.Background(), srv.Client(), srv.URL, []byte(`{}`))
	if s.err != nil || s.status != http.StatusOK {
		t.Fatalf("unexpected sample %+v", s)
	}
	if s.endNode != "high" {
		t.Fatalf("expected end node high, got %q", s.endNode)
	}
}

func TestSummarize(t *testing.T) {
	samples := []sample{
		{latency: 10 * time.Millisecond, status: 200, endNode: "high"},
		{latency: 20 * time.Millisecond, status: 200, endNode: "low"},
		{latency: 30 * time.Millisecond, status: 422},
		{latency: 40 * time.Millisecond, err: errors.New("timeout")},
	}
	r := summarize(samples, 2*time.Second)

	if r.Requests != 4 || r.Success != 2 || r.Non2xx != 1 || r.Errors != 1 {
		t.Fatalf("unexpected counts %+v", r)
	}
	if r.AchievedRPS != 2 {
		t.Fatalf("expected 2 rps, got %v", r.AchievedRPS)
	}
	if r.Avg != 25*time.Millisecond {
		t.Fatalf("expected avg 25ms, got %s", r.Avg)
	}
	if r.P50 != 20*time.Millisecond {
		t.Fatalf("expected p50 20ms, got %s", r.P50)
	}
	if r.EndNodes["high"] != 1 || r.EndNodes["low"] != 1 {
		t.Fatalf("unexpected end nodes %v", r.EndNodes)
	}
	if r.pass(options{rps: 1, maxP90: time.Second}) {
		t.Fatalf("a run with errors must not pass")
	}
}
