// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"fmt"
	"log"
	"slices"
	"strings"
)

// AccessControl decides who may use the service and who may delete games.
type AccessControl struct {
	allow  []string
	admins []string
	// MaxGames caps the games one user may own. 0 means unlimited.
	MaxGames int
}

// NewAccessControl creates an AccessControl. An empty allow list lets every
// authenticated user in. Admins are always allowed. Entries that look like
// email addresses but do not parse are dropped.
func NewAccessControl(allow, admins []string) *AccessControl {
	norm := func(in []string) []string {
		var out []string
		for _, u := range in {
			u = normalizeUserID(u)
			if u == "" || slices.Contains(out, u) {
				continue
			}
			if strings.Contains(u, "@") && !strings.HasPrefix(u, "@") && !isValidEmail(u) {
				log.Printf("AccessControl: ignoring invalid address %q", u)
				continue
			}
			out = append(out, u)
		}
		return out
	}
	return &AccessControl{allow: norm(allow), admins: norm(admins)}
}

// IsAllowed checks if a user is allowed to access the service.
// Returns allowed status and a denial message (if denied).
func (ac *AccessControl) IsAllowed(userID string) (bool, string) {
	if userID == "" {
		return false, "Authentication required"
	}
	userID = normalizeUserID(userID)
	if ac.IsAdmin(userID) || len(ac.allow) == 0 {
		return true, ""
	}
	for _, u := range ac.allow {
		if u == userID {
			return true, ""
		}
		// "@example.com" admits a whole domain.
		if strings.HasPrefix(u, "@") && strings.HasSuffix(userID, u) {
			return true, ""
		}
	}
	return false, "Access is restricted to invited users"
}

// IsAdmin checks if a user has admin privileges.
func (ac *AccessControl) IsAdmin(userID string) bool {
	if userID == "" {
		return false
	}
	return slices.Contains(ac.admins, normalizeUserID(userID))
}

// CanDelete reports whether userID may delete a game owned by ownerID.
func (ac *AccessControl) CanDelete(userID, ownerID string) bool {
	userID = normalizeUserID(userID)
	if userID == "" {
		return false
	}
	return userID == normalizeUserID(ownerID) || ac.IsAdmin(userID)
}

// CheckGameQuota verifies if a user can create a new game.
func (ac *AccessControl) CheckGameQuota(userID string, owned int) error {
	if ac.MaxGames <= 0 || ac.IsAdmin(userID) {
		return nil
	}
	if owned >= ac.MaxGames {
		return fmt.Errorf("game limit reached (%d)", ac.MaxGames)
	}
	return nil
}
