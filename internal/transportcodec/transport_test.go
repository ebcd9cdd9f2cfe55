package transportcodec

import "testing"

func TestTransportForBoundary(t *testing.T) {
	cases := []struct {
		size int
		want Transport
	}{
		{0, Direct},
		{DirectSizeLimit, Direct},
		{DirectSizeLimit + 1, Chunked},
		{51201, Chunked},
	}
	for _, c := range cases {
		if got := TransportFor(c.size); got != c.want {
			t.Errorf("TransportFor(%d) = %v, want %v", c.size, got, c.want)
		}
	}
}

func TestIsCrashReportKind(t *testing.T) {
	for _, k := range []int{KindLegacyRumor, KindDirect, KindManifest} {
		if !IsCrashReportKind(k) {
			t.Errorf("expected kind %d to be a crash report kind", k)
		}
	}
	if IsCrashReportKind(KindChunk) {
		t.Errorf("chunk kind must never be a standalone crash report kind")
	}
}

func TestIsChunkedKind(t *testing.T) {
	if !IsChunkedKind(KindManifest) {
		t.Errorf("manifest kind should be chunked")
	}
	if IsChunkedKind(KindDirect) {
		t.Errorf("direct kind should not be chunked")
	}
}
