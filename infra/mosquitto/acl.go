package mosquitto

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/kilianp07/skybridge/core/model"
	"github.com/kilianp07/skybridge/internal/fsutil"
)

// ACLFile is a mosquitto ACL file made of "user <name>" blocks followed by
// "topic <read|write|readwrite> <pattern>" lines. Lines before the first
// user block (global rules, pattern rules, comments) are preserved.
type ACLFile struct {
	Path string
}

type aclBlock struct {
	user  string
	lines []string
}

type aclDoc struct {
	header []string
	blocks []aclBlock
}

// ReplaceUser rewrites the rules of username with rules, dropping any
// previous block for that user.
func (a *ACLFile) ReplaceUser(username string, rules []model.AccessRule) error {
	if username == "" || strings.ContainsAny(username, " \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	doc, err := a.read()
	if err != nil {
		return err
	}
	block := aclBlock{user: username}
	for _, r := range rules {
		if r.Username != "" && r.Username != username {
			return fmt.Errorf("rule for %q in block of %q", r.Username, username)
		}
		block.lines = append(block.lines, fmt.Sprintf("topic %s %s", r.Permission, r.Topic))
	}
	kept := doc.blocks[:0]
	for _, b := range doc.blocks {
		if b.user != username {
			kept = append(kept, b)
		}
	}
	doc.blocks = append(kept, block)
	return fsutil.WriteFileAtomic(a.Path, doc.render(), 0o644)
}

// RemoveUser drops the block of username. Removing an unknown user is a
// no-op.
func (a *ACLFile) RemoveUser(username string) error {
	doc, err := a.read()
	if err != nil {
		return err
	}
	kept := doc.blocks[:0]
	for _, b := range doc.blocks {
		if b.user != username {
			kept = append(kept, b)
		}
	}
	if len(kept) == len(doc.blocks) {
		return nil
	}
	doc.blocks = kept
	return fsutil.WriteFileAtomic(a.Path, doc.render(), 0o644)
}

// Owners maps each user whose rules cover a single device topic tree to
// that device id. Users with wildcard or foreign rules are left out.
func (a *ACLFile) Owners() (map[string]string, error) {
	doc, err := a.read()
	if err != nil {
		return nil, err
	}
	owners := make(map[string]string)
	for _, b := range doc.blocks {
		var id string
		for _, l := range b.lines {
			fields := strings.Fields(l)
			if len(fields) != 3 || fields[0] != "topic" {
				continue
			}
			dev, ok := model.DeviceIDFromTopic(fields[2])
			if !ok || (id != "" && dev != id) {
				id = ""
				break
			}
			id = dev
		}
		if id != "" {
			owners[b.user] = id
		}
	}
	return owners, nil
}

// Rules returns the topic rules attached to username.
func (a *ACLFile) Rules(username string) ([]model.AccessRule, error) {
	doc, err := a.read()
	if err != nil {
		return nil, err
	}
	var out []model.AccessRule
	for _, b := range doc.blocks {
		if b.user != username {
			continue
		}
		for _, l := range b.lines {
			fields := strings.Fields(l)
			if len(fields) == 3 && fields[0] == "topic" {
				out = append(out, model.AccessRule{
					Username:   username,
					Topic:      fields[2],
					Permission: model.Permission(fields[1]),
				})
			}
		}
	}
	return out, nil
}

func (a *ACLFile) read() (*aclDoc, error) {
	data, err := fsutil.ReadFileIfExists(a.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a.Path, err)
	}
	doc := &aclDoc{}
	var cur *aclBlock
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t")
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "user ") {
			doc.blocks = append(doc.blocks, aclBlock{user: strings.TrimSpace(strings.TrimPrefix(trimmed, "user "))})
			cur = &doc.blocks[len(doc.blocks)-1]
			continue
		}
		if cur == nil {
			doc.header = append(doc.header, line)
			continue
		}
		if trimmed == "" {
			continue
		}
		cur.lines = append(cur.lines, trimmed)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for len(doc.header) > 0 && doc.header[len(doc.header)-1] == "" {
		doc.header = doc.header[:len(doc.header)-1]
	}
	return doc, nil
}

func (d *aclDoc) render() []byte {
	var buf bytes.Buffer
	for _, l := range d.header {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	for _, b := range d.blocks {
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "user %s\n", b.user)
		for _, l := range b.lines {
			buf.WriteString(l)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}
