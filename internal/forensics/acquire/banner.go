package acquire

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	bannerMarker = "Linux version "

	// bannerScanLimit bounds how much of the image is searched. The kernel
	// banner sits in low physical memory, scanning the whole of a
	// multi-gigabyte dump buys nothing.
	bannerScanLimit = 512 << 20

	bannerChunkSize = 4 << 20
)

// Banner is a kernel version banner found inside a memory image.
type Banner struct {
	Raw           string
	KernelVersion string
}

// ScanKernelBanner searches the image for the kernel's version banner. The
// banner yields the exact kernel version string symbol resolution keys on.
func ScanKernelBanner(path string) (*Banner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	marker := []byte(bannerMarker)
	buf := make([]byte, bannerChunkSize+len(marker))
	var scanned int64
	var carry []byte

	for scanned < bannerScanLimit {
		n, err := f.Read(buf[len(carry):])
		if n > 0 {
			copy(buf, carry)
			window := buf[:len(carry)+n]
			if idx := bytes.Index(window, marker); idx >= 0 {
				return bannerAt(f, scanned-int64(len(carry))+int64(idx))
			}
			// keep a marker-sized tail so a banner split across reads
			// is still found
			if len(window) >= len(marker) {
				carry = append(carry[:0], window[len(window)-len(marker):]...)
			}
			scanned += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no kernel banner found in image")
}

// bannerAt re-reads the banner line at the given offset.
func bannerAt(f *os.File, offset int64) (*Banner, error) {
	line := make([]byte, 512)
	if _, err := f.ReadAt(line, offset); err != nil && err != io.EOF {
		return nil, err
	}
	if end := bytes.IndexAny(line, "\n\x00"); end >= 0 {
		line = line[:end]
	}

	raw := string(line)
	fields := strings.Fields(strings.TrimPrefix(raw, bannerMarker))
	if len(fields) == 0 {
		return nil, fmt.Errorf("malformed kernel banner: %q", raw)
	}
	return &Banner{Raw: raw, KernelVersion: fields[0]}, nil
}
