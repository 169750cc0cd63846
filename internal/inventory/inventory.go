// Package inventory loads the server inventory that grounds entity
// detection: known systems, their aliases, and their owning contacts.
package inventory

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/moolen/triage/internal/logging"
)

var logger = logging.GetLogger("inventory")

// Contact is the owning contact of a system.
type Contact struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Phone string `yaml:"phone,omitempty"`
}

// System is one known system with its canonical name and aliases.
type System struct {
	Name        string   `yaml:"name"`
	Aliases     []string `yaml:"aliases,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Environment string   `yaml:"environment,omitempty"`
	Contact     *Contact `yaml:"contact,omitempty"`
}

// Inventory is the full server inventory. DomainOwners routes issue types
// to a domain-owning system whose contact outranks the affected server's
// owner, e.g. "security" incidents go to the security team regardless of
// which host logged them.
type Inventory struct {
	Systems      []System          `yaml:"systems"`
	DomainOwners map[string]string `yaml:"domain_owners,omitempty"`
}

// Load reads and validates an inventory YAML file.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory file: %w", err)
	}

	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parsing inventory file %s: %w", path, err)
	}

	if err := inv.Validate(); err != nil {
		return nil, err
	}

	logger.InfoWithFields("inventory loaded",
		logging.Field("path", path),
		logging.Field("systems", len(inv.Systems)),
	)
	return &inv, nil
}

// Validate checks canonical-name uniqueness and domain-owner references.
func (inv *Inventory) Validate() error {
	seen := make(map[string]bool)
	for i, s := range inv.Systems {
		if s.Name == "" {
			return fmt.Errorf("system at index %d has no name", i)
		}
		key := strings.ToLower(s.Name)
		if seen[key] {
			return fmt.Errorf("duplicate system name: %s", s.Name)
		}
		seen[key] = true
	}
	for issueType, owner := range inv.DomainOwners {
		if !seen[strings.ToLower(owner)] {
			return fmt.Errorf("domain owner for %q references unknown system %q", issueType, owner)
		}
	}
	return nil
}

// SystemByName returns the system with the given canonical name, or nil.
// Lookup is case-insensitive.
func (inv *Inventory) SystemByName(name string) *System {
	for i := range inv.Systems {
		if strings.EqualFold(inv.Systems[i].Name, name) {
			return &inv.Systems[i]
		}
	}
	return nil
}

// DomainOwner returns the system owning the given issue type, or nil when
// no domain routing is configured for it.
func (inv *Inventory) DomainOwner(issueType string) *System {
	name, ok := inv.DomainOwners[issueType]
	if !ok {
		return nil
	}
	return inv.SystemByName(name)
}

// ContactNames returns the names of all system contacts. Used to seed the
// redactor's known-name masking.
func (inv *Inventory) ContactNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, s := range inv.Systems {
		if s.Contact == nil || s.Contact.Name == "" {
			continue
		}
		key := strings.ToLower(s.Contact.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, s.Contact.Name)
	}
	return names
}
