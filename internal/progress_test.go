package internal

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrinterProgress(t *testing.T) {
	tests := []struct {
		name    string
		fn      func() error
		wantErr bool
	}{
		{
			name:    "success",
			fn:      func() error { return nil },
			wantErr: false,
		},
		{
			name:    "error",
			fn:      func() error { return errors.New("upload failed") },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			p := NewPrinter(&out, &errOut)

			err := p.Progress(context.Background(), "Uploading", tt.fn)
			if (err != nil) != tt.wantErr {
				t.Errorf("Progress() error = %v, wantErr %v", err, tt.wantErr)
			}
			// no spinner frames when not a terminal
			assert.Empty(t, errOut.String())
		})
	}
}

func TestPrinterProgressSteps(t *testing.T) {
	tests := []struct {
		name    string
		steps   []ProgressStep
		wantErr string
		ran     int
	}{
		{
			name: "successful steps",
			steps: []ProgressStep{
				{Message: "Validate"},
				{Message: "Upload"},
			},
			ran: 2,
		},
		{
			name: "step with error",
			steps: []ProgressStep{
				{Message: "Validate"},
				{Message: "Upload", Fn: func() error { return errors.New("refused") }},
				{Message: "Refresh"},
			},
			wantErr: "Upload: refused",
			ran:     1,
		},
		{
			name:  "empty steps",
			steps: []ProgressStep{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := 0
			for i := range tt.steps {
				if tt.steps[i].Fn == nil {
					tt.steps[i].Fn = func() error { ran++; return nil }
				}
			}

			p := NewPrinter(&bytes.Buffer{}, &bytes.Buffer{})
			err := p.ProgressSteps(context.Background(), tt.steps)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.ran, ran)
		})
	}
}

func TestPrinterMessages(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPrinter(&out, &errOut)

	p.Success("uploaded handbook.pdf")
	p.Info("3 documents")
	p.Warning("server unreachable, showing cached list")
	p.Error("no document matches \"nope\"")

	assert.Equal(t, "uploaded handbook.pdf\n3 documents\n", out.String())
	assert.Equal(t, "WARNING: server unreachable, showing cached list\nno document matches \"nope\"\n", errOut.String())
}

func TestStartSpinnerNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	stop := StartSpinner(&buf, "Thinking")
	time.Sleep(20 * time.Millisecond)
	stop()
	stop()
	assert.Empty(t, buf.String())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
	assert.False(t, IsTerminal(nil))
}
