package security

import "testing"

func TestPolicy_IsFileAllowed(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name     string
		filename string
		mimeType string
		want     bool
	}{
		{"plain text", "notes.txt", "text/plain", true},
		{"pdf without mime", "report.pdf", "", true},
		{"no extension", "README", "", true},
		{"exe", "setup.exe", "application/octet-stream", false},
		{"uppercase exe", "SETUP.EXE", "", false},
		{"shell script", "install.sh", "text/plain", false},
		{"powershell", "run.ps1", "", false},
		{"double extension ending in js", "invoice.pdf.js", "", false},
		{"blocked mime", "harmless.txt", "application/x-msdownload", false},
		{"blocked mime with params", "harmless.txt", "text/javascript; charset=utf-8", false},
		{"blocked mime uppercase", "harmless.txt", "Application/JavaScript", false},
		{"json is fine", "data.json", "application/json", true},
		{"exe with trailing space", "evil.exe ", "", false},
		{"exe with trailing no-break space", "evil.exe\u00a0", "", false},
		{"exe with trailing dots", "evil.exe...", "", false},
		{"exe with trailing zero-width space", "evil.exe\u200b", "", false},
		{"ps1 with trailing tab", "run.ps1\t", "", false},
		{"trailing space on allowed type", "notes.txt ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsFileAllowed(tt.filename, tt.mimeType); got != tt.want {
				t.Errorf("IsFileAllowed(%q, %q) = %v, want %v", tt.filename, tt.mimeType, got, tt.want)
			}
		})
	}
}

func TestPolicy_IsFileSizeAllowed(t *testing.T) {
	p := Policy{MaxFileSize: 100}

	tests := []struct {
		size int64
		want bool
	}{
		{-1, false},
		{0, false},
		{1, true},
		{100, true},
		{101, false},
	}
	for _, tt := range tests {
		if got := p.IsFileSizeAllowed(tt.size); got != tt.want {
			t.Errorf("IsFileSizeAllowed(%d) = %v, want %v", tt.size, got, tt.want)
		}
	}
}

func TestPolicy_IsProjectSizeAllowed_Boundary(t *testing.T) {
	p := DefaultPolicy()

	if !p.IsProjectSizeAllowed(0, p.MaxProjectSize) {
		t.Error("expected project of exactly MaxProjectSize to be allowed")
	}
	if p.IsProjectSizeAllowed(0, p.MaxProjectSize+1) {
		t.Error("expected project of MaxProjectSize+1 to be rejected")
	}
	if p.IsProjectSizeAllowed(p.MaxProjectSize-10, 11) {
		t.Error("expected running total over the ceiling to be rejected")
	}
}

func TestPolicy_IsFileCountAllowed(t *testing.T) {
	p := DefaultPolicy()

	if p.IsFileCountAllowed(0) {
		t.Error("expected empty batch to be rejected")
	}
	if !p.IsFileCountAllowed(1) || !p.IsFileCountAllowed(DefaultMaxFiles) {
		t.Error("expected 1..MaxFiles to be allowed")
	}
	if p.IsFileCountAllowed(DefaultMaxFiles + 1) {
		t.Error("expected MaxFiles+1 to be rejected")
	}
}
