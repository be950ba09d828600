package volume

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogConfigKeepsStdoutClean(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("unable to make pipe: %v\n", err)
	}
	stdout := os.Stdout
	os.Stdout = w
	defer func() {
		os.Stdout = stdout
	}()

	logfile := filepath.Join(t.TempDir(), "voltasks.log")
	c := LogConfig{Logfile: logfile, MaxSize: 1, MaxAge: 1}
	c.SetLogger()
	Infof("populating %s\n", "chunk_ccs")
	Shutdown()
	log.SetOutput(os.Stderr)
	SetLogger(nil)

	os.Stdout = stdout
	w.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unable to read stdout: %v\n", err)
	}
	if len(out) != 0 {
		t.Errorf("expected nothing on stdout, got %q\n", out)
	}

	data, err := os.ReadFile(logfile)
	if err != nil {
		t.Fatalf("log file not written: %v\n", err)
	}
	if !strings.Contains(string(data), "INFO populating chunk_ccs") {
		t.Errorf("log file missing message: %q\n", data)
	}
}
