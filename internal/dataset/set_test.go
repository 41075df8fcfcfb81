package dataset

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeShard(t *testing.T, dir, name string, entries map[string]string) string {
	t.Helper()
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for member, body := range entries {
		hdr := &tar.Header{Name: member, Size: int64(len(body)), Mode: 0o644}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}
	return path
}

func TestStreamShardPairsEntries(t *testing.T) {
	dir := t.TempDir()
	shard := writeShard(t, dir, "shard-000000.tar", map[string]string{
		"a.vec":    "0 0.5 1",
		"a.cls":    "2",
		"b.cls":    "0\n",
		"b.vec":    "1 1 0",
		"note.txt": "ignored",
	})
	recs, err := ReadShard(context.Background(), shard, 4)
	if err != nil {
		t.Fatalf("ReadShard: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
}

func TestStreamShardIncomplete(t *testing.T) {
	dir := t.TempDir()
	shard := writeShard(t, dir, "shard-000000.tar", map[string]string{"a.vec": "0 1"})
	if _, err := ReadShard(context.Background(), shard, 4); err == nil {
		t.Fatalf("expected error for unpaired member")
	}
}

func TestLoadDigitizesInputs(t *testing.T) {
	dir := t.TempDir()
	p0 := writeShard(t, dir, "shard-000000.tar", map[string]string{"a.vec": "0 0.5 1", "a.cls": "1"})
	p1 := writeShard(t, dir, "shard-000001.tar", map[string]string{"b.vec": "0.2 0.9 1.4", "b.cls": "0"})
	spec := Spec{NumInput: 3, NumOutput: 2, NumInputLevel: 5}
	set, err := Load(context.Background(), []string{p0, p1}, spec, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("expected 2 samples, got %d", set.Len())
	}
	first := set.Samples[0]
	want := []int{0, 2, 4}
	for i, d := range first.DInput {
		if d != want[i] {
			t.Fatalf("dInput[%d]=%d want %d", i, d, want[i])
		}
	}
	if first.Target[1] != 1 || first.Target[0] != 0 {
		t.Fatalf("target not one-hot: %v", first.Target)
	}
	second := set.Samples[1]
	if second.Input[2] != 1 || second.DInput[2] != 4 {
		t.Fatalf("inputs above 1 must clamp, got %v %v", second.Input, second.DInput)
	}
}

func TestLoadRejectsWrongWidth(t *testing.T) {
	dir := t.TempDir()
	p := writeShard(t, dir, "shard-000000.tar", map[string]string{"a.vec": "0 1", "a.cls": "0"})
	spec := Spec{NumInput: 3, NumOutput: 2, NumInputLevel: 2}
	if _, err := Load(context.Background(), []string{p}, spec, 0); err == nil {
		t.Fatalf("expected width mismatch error")
	}
}

func TestSyntheticIsSeeded(t *testing.T) {
	spec := Spec{NumInput: 8, NumOutput: 3, NumInputLevel: 32}
	a, err := Synthetic(30, spec, 0.1, 7)
	if err != nil {
		t.Fatalf("Synthetic: %v", err)
	}
	b, _ := Synthetic(30, spec, 0.1, 7)
	for i := range a.Samples {
		for k := range a.Samples[i].DInput {
			if a.Samples[i].DInput[k] != b.Samples[i].DInput[k] {
				t.Fatalf("same seed produced different sets")
			}
			if d := a.Samples[i].DInput[k]; d < 0 || d > 31 {
				t.Fatalf("dInput %d out of range", d)
			}
		}
	}
}

func TestSamplerStaysInRange(t *testing.T) {
	s, err := NewSampler(5, 1)
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		idx := s.Next()
		if idx < 0 || idx >= 5 {
			t.Fatalf("index %d out of range", idx)
		}
		seen[idx] = true
	}
	if len(seen) != 5 {
		t.Fatalf("expected every index drawn, saw %d", len(seen))
	}
	if _, err := NewSampler(0, 1); err == nil {
		t.Fatalf("expected error for empty set")
	}
}
