package metrics

import (
	"testing"
	"time"
)

func BenchmarkEngine_RecordRequest(b *testing.B) {
	engine := NewEngine()
	defer engine.Stop()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		engine.RecordRequest("generate", time.Duration(i%100)*time.Millisecond, false, 1024)
	}
}

// Concurrent recording is the common case: every VU records into one engine.
func BenchmarkEngine_RecordRequest_Parallel(b *testing.B) {
	engine := NewEngine()
	defer engine.Stop()

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			engine.RecordRequest("generate", 5*time.Millisecond, false, 1024)
			engine.RecordCheck("is status 200", true)
		}
	})
}

func BenchmarkEngine_Snapshot(b *testing.B) {
	engine := NewEngine()
	defer engine.Stop()

	for i := 0; i < 10000; i++ {
		engine.RecordRequest("generate", time.Duration(i%100)*time.Millisecond, false, 1024)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = engine.Snapshot()
	}
}
