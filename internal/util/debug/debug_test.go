// Copyright 2024 The pgfetch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package debug

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgfetch/pgfetch/internal/util/must"
	"github.com/pgfetch/pgfetch/internal/util/testutil"
)

func TestRunHandler(t *testing.T) {
	// no t.Parallel(); RunHandler registers on http.DefaultServeMux

	// create and close TCP socket to obtain a free port
	l, err := net.ListenTCP("tcp", must.NotFail(net.ResolveTCPAddr("tcp", "127.0.0.1:0")))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	addr := l.Addr().String()

	ctx, cancel := context.WithCancel(testutil.Ctx(t))

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		RunHandler(ctx, addr, prometheus.NewRegistry(), testutil.Logger(t))
	}()

	var res *http.Response

	for i := 0; i < 10; i++ {
		res, err = http.Get("http://" + addr + "/debug/metrics")
		if err == nil {
			break
		}

		time.Sleep(250 * time.Millisecond)
	}

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	res, err = http.Get("http://" + addr + "/debug/logs")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	res, err = http.Get("http://" + addr + "/debug")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	cancel()
	wg.Wait()
}
