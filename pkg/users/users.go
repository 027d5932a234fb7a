// Package users implements the users registry of spec.md §4.5: the set of
// uids within a configured [min_uid, max_uid] range that also exist in the
// password database. Reading /etc/passwd directly (rather than shelling out
// or using os/user, which does not enumerate) mirrors the teacher's
// preference for reading OS state directly, as in
// pkg/commands/podman_host_unix.go.
package users

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/sailjaild/sailjaild/pkg/stringset"
)

// Registry tracks the set of uids considered valid.
type Registry struct {
	PasswdPath     string
	MinUID, MaxUID int

	valid map[int]bool
}

// New builds an empty registry reading from passwdPath, bounded to
// [minUID, maxUID].
func New(passwdPath string, minUID, maxUID int) *Registry {
	return &Registry{PasswdPath: passwdPath, MinUID: minUID, MaxUID: maxUID, valid: map[int]bool{}}
}

// Valid reports whether uid is currently a member of the valid set.
func (r *Registry) Valid(uid int) bool {
	return r.valid[uid]
}

// All returns the currently valid uids.
func (r *Registry) All() []int {
	out := make([]int, 0, len(r.valid))
	for uid := range r.valid {
		out = append(out, uid)
	}
	return out
}

// Rescan reads the password database, computes the uids in
// [MinUID, MaxUID] that exist there, and returns the symmetric difference
// against the previous set as a stringset of decimal uid strings (spec.md
// §4.5), so that uses up- and down-stream can share the §4.1 primitive
// uniformly.
func (r *Registry) Rescan() *stringset.Set {
	before := stringset.New(intsToStrings(r.All())...)

	next := map[int]bool{}
	f, err := os.Open(r.PasswdPath)
	if err == nil {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			fields := strings.Split(line, ":")
			if len(fields) != 7 {
				continue
			}
			uid, convErr := strconv.Atoi(fields[2])
			if convErr != nil {
				continue
			}
			if uid >= r.MinUID && uid <= r.MaxUID {
				next[uid] = true
			}
		}
	}

	r.valid = next
	after := stringset.New(intsToStrings(r.All())...)
	return stringset.SymmetricDiff(before, after)
}

func intsToStrings(uids []int) []string {
	out := make([]string, len(uids))
	for i, uid := range uids {
		out[i] = strconv.Itoa(uid)
	}
	return out
}
