package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/uptimebot/internal/probe"
	"github.com/hazz-dev/uptimebot/internal/storage"
)

type mockFinder struct {
	services []storage.Service
	err      error
}

func (m *mockFinder) Find(_ context.Context, _ storage.Filter) ([]storage.Service, error) {
	return m.services, m.err
}

func TestRunChecks_AllUp_OutputFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	services := []storage.Service{{Name: "myapi", Owner: 42, Endpoint: srv.URL}}

	var buf bytes.Buffer
	if err := runChecks(&buf, services, probe.New(5*time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{"SERVICE", "myapi", "42", srv.URL, "up"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, output)
		}
	}
}

func TestRunChecks_ServerErrorStillUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	services := []storage.Service{{Name: "flaky", Endpoint: srv.URL}}

	var buf bytes.Buffer
	if err := runChecks(&buf, services, probe.New(5*time.Second)); err != nil {
		t.Fatalf("a completed response counts as reachable, got error: %v", err)
	}
}

func TestRunChecks_OneDown_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	closed := "http://" + ln.Addr().String()
	ln.Close()

	services := []storage.Service{
		{Name: "good", Endpoint: srv.URL},
		{Name: "bad", Endpoint: closed},
	}

	var buf bytes.Buffer
	err = runChecks(&buf, services, probe.New(2*time.Second))
	if err == nil {
		t.Fatal("expected error when a service is down")
	}
	output := buf.String()
	if !strings.Contains(output, "good") || !strings.Contains(output, "bad") || !strings.Contains(output, "down") {
		t.Errorf("unexpected output:\n%s", output)
	}
}

func TestRunChecks_PreservesOrder(t *testing.T) {
	up := probe.Func(func(_ context.Context, endpoint string) probe.Result {
		return probe.Result{Endpoint: endpoint, Reachable: true}
	})
	services := []storage.Service{
		{Name: "first", Endpoint: "http://1"},
		{Name: "second", Endpoint: "http://2"},
		{Name: "third", Endpoint: "http://3"},
	}

	var buf bytes.Buffer
	if err := runChecks(&buf, services, up); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !(strings.Index(out, "first") < strings.Index(out, "second") && strings.Index(out, "second") < strings.Index(out, "third")) {
		t.Errorf("expected rows in stored order, got:\n%s", out)
	}
}

func TestRunChecks_NoServices(t *testing.T) {
	var buf bytes.Buffer
	if err := runChecks(&buf, nil, probe.New(time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "No services registered") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestExecuteCheck_FindError(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	err := executeCheck(cmd, &mockFinder{err: errors.New("db locked")}, probe.New(time.Second))
	if err == nil {
		t.Fatal("expected error")
	}
}
