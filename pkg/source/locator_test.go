package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accountSource = `package com.example;

public class Account {
    private int balance;

    public Account() {
        balance = 0;
    }

    public void deposit(int amount) {
        balance += amount;
    }

    static class Ledger {
        int total(int a) {
            return a;
        }

        int total(int a, int b) {
            return a + b;
        }
    }
}
`

func TestLocatorMethods(t *testing.T) {
	spans, err := NewLocator().Methods([]byte(accountSource))
	require.NoError(t, err)

	want := []Span{
		{Class: "Account", Name: ConstructorName, StartLine: 6, EndLine: 8, Constructor: true},
		{Class: "Account", Name: "deposit", StartLine: 10, EndLine: 12},
		{Class: "Account$Ledger", Name: "total", StartLine: 15, EndLine: 17},
		{Class: "Account$Ledger", Name: "total", StartLine: 19, EndLine: 21},
	}
	assert.Equal(t, want, spans)
}

func TestLocatorFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Account.java")
	require.NoError(t, os.WriteFile(path, []byte(accountSource), 0644))

	spans, err := NewLocator().File(path)
	require.NoError(t, err)
	assert.Len(t, spans, 4)

	_, err = NewLocator().File(filepath.Join(t.TempDir(), "Missing.java"))
	assert.Error(t, err)
}

func TestFind(t *testing.T) {
	spans, err := NewLocator().Methods([]byte(accountSource))
	require.NoError(t, err)

	tests := []struct {
		name      string
		class     string
		method    string
		line      int
		wantStart int
		wantOK    bool
	}{
		{"constructor", "Account", ConstructorName, 7, 6, true},
		{"overload by line", "Account$Ledger", "total", 20, 19, true},
		{"first overload without line", "Account$Ledger", "total", 0, 15, true},
		{"line outside every span", "Account", "deposit", 99, 10, true},
		{"wrong class", "Account", "total", 16, 0, false},
		{"unknown method", "Account", "withdraw", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span, ok := Find(spans, tt.class, tt.method, tt.line)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStart, span.StartLine)
		})
	}
}

func TestSourcePath(t *testing.T) {
	assert.Equal(t, "com/example/Account.java", SourcePath("com/example/Account$Ledger", "Account.java"))
	assert.Equal(t, "Main.java", SourcePath("Main", "Main.java"))
	assert.Empty(t, SourcePath("com/example/Gen", ""))

	tests := []struct {
		relPath string
		want    bool
	}{
		{"com/example/Account.java", true},
		{"src/main/java/com/example/Account.java", true},
		{"src/main/java/org/com/example/Account.java", true},
		{"src/main/java/com/example/SubAccount.java", false},
		{"com/other/Account.java", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchesSourcePath(tt.relPath, "com/example/Account.java"), tt.relPath)
	}
	assert.False(t, MatchesSourcePath("Main.java", ""))
}
