package process_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devraulu/sitescout/pkg/process"
	"github.com/stretchr/testify/assert"
)

func TestRobotsChecker(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := process.NewRobotsChecker("sitescout-test", time.Second)
	ctx := context.Background()

	assert.True(t, c.Allowed(ctx, srv.URL+"/public"))
	assert.False(t, c.Allowed(ctx, srv.URL+"/private/page"))
	assert.EqualValues(t, 1, hits.Load(), "robots.txt is fetched once per origin")
}

func TestRobotsCheckerMissingFileAllows(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := process.NewRobotsChecker("sitescout-test", time.Second)
	assert.True(t, c.Allowed(context.Background(), srv.URL+"/anything"))
}
