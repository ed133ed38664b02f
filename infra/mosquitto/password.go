package mosquitto

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/kilianp07/skybridge/internal/fsutil"
)

// Mosquitto 2.x PBKDF2-SHA512 parameters ("$7$" hashes).
const (
	DefaultIterations = 101
	saltLen           = 12
	keyLen            = 64
)

// ErrInvalidUsername is returned for usernames the file format cannot hold.
var ErrInvalidUsername = errors.New("invalid username")

// HashPassword returns a mosquitto "$7$<iterations>$<salt>$<hash>" string.
func HashPassword(password string, iterations int) (string, error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha512.New)
	return fmt.Sprintf("$7$%d$%s$%s", iterations,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key)), nil
}

// VerifyPassword checks password against a "$7$" hash.
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[1] != "7" {
		return false, fmt.Errorf("unsupported hash format")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return false, fmt.Errorf("parsing iterations: %q", parts[2])
	}
	salt, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return false, fmt.Errorf("decoding salt: %w", err)
	}
	hash, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decoding hash: %w", err)
	}
	candidate := pbkdf2.Key([]byte(password), salt, iterations, len(hash), sha512.New)
	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

// PasswordFile is a mosquitto password file: one "username:hash" per line.
type PasswordFile struct {
	Path       string
	Iterations int
}

type passwdEntry struct {
	user string
	// line is kept verbatim for comments and blank lines (user == "").
	line string
}

// Upsert sets the password of username, replacing an existing entry in
// place or appending a new one.
func (p *PasswordFile) Upsert(username, password string) error {
	if username == "" || strings.ContainsAny(username, ": \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	entries, err := p.read()
	if err != nil {
		return err
	}
	hash, err := HashPassword(password, p.Iterations)
	if err != nil {
		return err
	}
	line := username + ":" + hash
	replaced := false
	for i, e := range entries {
		if e.user == username {
			entries[i].line = line
			replaced = true
		}
	}
	if !replaced {
		entries = append(entries, passwdEntry{user: username, line: line})
	}
	return p.write(entries)
}

// Remove deletes every entry of username. Removing an unknown user is a
// no-op.
func (p *PasswordFile) Remove(username string) error {
	entries, err := p.read()
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.user != username {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return p.write(kept)
}

func (p *PasswordFile) write(entries []passwdEntry) error {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e.line)
		buf.WriteByte('\n')
	}
	return fsutil.WriteFileAtomic(p.Path, buf.Bytes(), 0o600)
}

// Lookup returns the stored hash of username.
func (p *PasswordFile) Lookup(username string) (string, bool, error) {
	entries, err := p.read()
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.user == username {
			_, hash, _ := strings.Cut(e.line, ":")
			return hash, true, nil
		}
	}
	return "", false, nil
}

// Users lists the usernames in file order.
func (p *PasswordFile) Users() ([]string, error) {
	entries, err := p.read()
	if err != nil {
		return nil, err
	}
	var users []string
	for _, e := range entries {
		if e.user != "" {
			users = append(users, e.user)
		}
	}
	return users, nil
}

func (p *PasswordFile) read() ([]passwdEntry, error) {
	data, err := fsutil.ReadFileIfExists(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.Path, err)
	}
	var entries []passwdEntry
	seen := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			entries = append(entries, passwdEntry{line: line})
			continue
		}
		user, _, ok := strings.Cut(trimmed, ":")
		if !ok {
			return nil, fmt.Errorf("%s: malformed line %q", p.Path, line)
		}
		// collapse duplicates left by older tooling
		if seen[user] {
			continue
		}
		seen[user] = true
		entries = append(entries, passwdEntry{user: user, line: trimmed})
	}
	return entries, sc.Err()
}
