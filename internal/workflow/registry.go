package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"docflow/internal/stage"
	"docflow/internal/transaction"
)

// ErrRegistryFrozen is returned when registering after Start.
var ErrRegistryFrozen = errors.New("handler registry is frozen while the coordinator runs")

// RegisterStageHandler binds h to the stage it advances transactions out of.
// A later registration for the same stage replaces the earlier one.
func (c *Coordinator) RegisterStageHandler(st transaction.Stage, h stage.StageHandler) error {
	if h == nil {
		return fmt.Errorf("register stage %q: nil handler", st)
	}
	if _, ok := transaction.ParseStage(string(st)); !ok || st.IsTerminal() || st.AwaitsExternalEvent() {
		return fmt.Errorf("register stage %q: stage does not accept a handler", st)
	}
	if c.IsRunning() {
		return ErrRegistryFrozen
	}
	c.regMu.Lock()
	c.stages[st] = h
	c.regMu.Unlock()
	return nil
}

// RegisterIntegration binds h under an external-system name.
func (c *Coordinator) RegisterIntegration(name string, h stage.IntegrationHandler) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return errors.New("register integration: empty name")
	}
	if h == nil {
		return fmt.Errorf("register integration %q: nil handler", name)
	}
	if c.IsRunning() {
		return ErrRegistryFrozen
	}
	c.regMu.Lock()
	c.integrations[name] = h
	c.regMu.Unlock()
	return nil
}

// Integration implements stage.Integrations.
func (c *Coordinator) Integration(name string) (stage.IntegrationHandler, bool) {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	h, ok := c.integrations[strings.ToLower(strings.TrimSpace(name))]
	return h, ok
}

func (c *Coordinator) stageHandler(st transaction.Stage) (stage.StageHandler, bool) {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	h, ok := c.stages[st]
	return h, ok
}

// StageHandlerNames lists registered stages in pipeline order.
func (c *Coordinator) StageHandlerNames() []string {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	names := make([]string, 0, len(c.stages))
	for _, st := range transaction.Pipeline() {
		if _, ok := c.stages[st]; ok {
			names = append(names, string(st))
		}
	}
	return names
}

// IntegrationNames lists registered integrations alphabetically.
func (c *Coordinator) IntegrationNames() []string {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	names := make([]string, 0, len(c.integrations))
	for name := range c.integrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
