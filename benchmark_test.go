package mfr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/absfs/mfr/win32"
)

// BenchmarkClassify benchmarks path classification, which does no I/O
func BenchmarkClassify(b *testing.B) {
	s, _ := newTestShim(b)
	paths := []string{
		`C:\ProgramData\App\settings.ini`,
		pkgRoot + `\VFS\SystemX64\app.dll`,
		writable + `\VFS\Common AppData\App\x.txt`,
		`D:\data\file.txt`,
		`\\server\share\file.txt`,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Classify(paths[i%len(paths)])
	}
}

// BenchmarkResolveMapping benchmarks the longest-base mapping search
func BenchmarkResolveMapping(b *testing.B) {
	s, _ := newTestShim(b)
	p, area := s.Classify(`C:\Windows\System32\drivers\etc\hosts`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if res := s.ResolveMapping(p, area); !res.Valid {
			b.Fatal("no mapping")
		}
	}
}

// BenchmarkGetAttributesPackageWinner benchmarks a lookup that misses the
// redirected tier and is answered by the package
func BenchmarkGetAttributesPackageWinner(b *testing.B) {
	s, a := newTestShim(b)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		writeFile(b, a, fmt.Sprintf(`%s\VFS\Common AppData\App\file%d.txt`, pkgRoot, i), "content")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.GetFileAttributes(ctx, `C:\ProgramData\App\file50.txt`); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkNegativeLookup benchmarks a lookup that misses every tier
func BenchmarkNegativeLookup(b *testing.B) {
	s, a := newTestShim(b)
	ctx := context.Background()
	mkdir(b, a, `C:\ProgramData\App`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.GetFileAttributes(ctx, `C:\ProgramData\App\missing.txt`); !errors.Is(err, win32.ERROR_FILE_NOT_FOUND) {
			b.Fatal(err)
		}
	}
}

// BenchmarkPlanOpenWrite benchmarks a dry run of the copy-on-write decision
func BenchmarkPlanOpenWrite(b *testing.B) {
	s, a := newTestShim(b)
	ctx := context.Background()
	writeFile(b, a, pkgRoot+`\VFS\Common AppData\App\settings.ini`, "[main]\n")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Plan(ctx, OpOpenWrite, `C:\ProgramData\App\settings.ini`); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFindMerge benchmarks enumerating a directory present in all
// three tiers
func BenchmarkFindMerge(b *testing.B) {
	s, a := newTestShim(b)
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		writeFile(b, a, fmt.Sprintf(`%s\VFS\Common AppData\App\red%d.txt`, writable, i), "r")
		writeFile(b, a, fmt.Sprintf(`%s\VFS\Common AppData\App\pkg%d.txt`, pkgRoot, i), "p")
		writeFile(b, a, fmt.Sprintf(`C:\ProgramData\App\native%d.txt`, i), "n")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, _, err := s.FindFirstFile(ctx, `C:\ProgramData\App\*`)
		if err != nil {
			b.Fatal(err)
		}
		n := 1
		for {
			if _, err := h.Next(ctx); err != nil {
				break
			}
			n++
		}
		h.Close()
		if n != 90 {
			b.Fatalf("got %d entries", n)
		}
	}
}

// BenchmarkMaterialize benchmarks the copy-up of a package file
func BenchmarkMaterialize(b *testing.B) {
	s, a := newTestShim(b)
	ctx := context.Background()
	src := pkgRoot + `\VFS\Common AppData\App\data.bin`
	writeFile(b, a, src, string(make([]byte, 64*1024)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dst := fmt.Sprintf(`%s\VFS\Common AppData\App\data%d.bin`, writable, i)
		if !s.Materialize(ctx, src, dst) {
			b.Fatal("materialize failed")
		}
	}
}
