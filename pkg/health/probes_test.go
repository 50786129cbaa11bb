package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBinaryAvailableFindsRealBinary(t *testing.T) {
	res := BinaryAvailable(context.Background(), "ls", time.Second)
	assert.Equal(t, StatusOK, res.Status)
}

func TestBinaryAvailableMissingBinary(t *testing.T) {
	res := BinaryAvailable(context.Background(), "definitely-not-a-real-binary-xyz", time.Second)
	assert.Equal(t, StatusError, res.Status)
}

func TestTCPReachableAgainstLocalListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("no local network available: %v", err)
	}
	defer ln.Close()

	res := TCPReachable(context.Background(), ln.Addr().String(), time.Second)
	assert.Equal(t, StatusOK, res.Status)
}

func TestTCPReachableRefused(t *testing.T) {
	res := TCPReachable(context.Background(), "127.0.0.1:1", 200*time.Millisecond)
	assert.Equal(t, StatusError, res.Status)
}

func TestFileExistsMissingFile(t *testing.T) {
	res := FileExists(context.Background(), "/no/such/path/at/all", time.Second)
	assert.Equal(t, StatusError, res.Status)
}

func TestAddrJoinsHostAndPort(t *testing.T) {
	assert.Equal(t, "127.0.0.1:7070", Addr("127.0.0.1", 7070))
}

func TestRunTimesOutAsWarnNotError(t *testing.T) {
	res := run(context.Background(), 10*time.Millisecond, func(ctx context.Context) (Status, string) {
		<-ctx.Done()
		return StatusError, "should not be reached"
	})
	assert.Equal(t, StatusWarn, res.Status)
}
