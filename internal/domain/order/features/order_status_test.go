package features

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/your-org/storefront-backend/internal/domain/order"
)

type statusTestContext struct {
	status   order.OrderStatus
	accepted bool
	notify   bool
	moved    bool
}

func (c *statusTestContext) reset() {
	c.status = ""
	c.accepted = false
	c.notify = false
	c.moved = false
}

func (c *statusTestContext) anOrderInStatus(status string) error {
	s := order.OrderStatus(status)
	if !s.IsValid() {
		return fmt.Errorf("unknown status %q", status)
	}
	c.status = s
	return nil
}

func (c *statusTestContext) theOrderIsMovedTo(target string) error {
	t := order.OrderStatus(target)
	c.moved = true
	c.accepted = c.status.CanTransitionTo(t)
	if c.accepted {
		c.status = t
		c.notify = t.NotifiesCustomer()
	}
	return nil
}

func (c *statusTestContext) theTransitionIsAccepted() error {
	if !c.moved || !c.accepted {
		return errors.New("expected transition to be accepted")
	}
	return nil
}

func (c *statusTestContext) theTransitionIsRejected() error {
	if !c.moved || c.accepted {
		return errors.New("expected transition to be rejected")
	}
	return nil
}

func (c *statusTestContext) theOrderStatusIs(status string) error {
	if c.status != order.OrderStatus(status) {
		return fmt.Errorf("expected status %s, got %s", status, c.status)
	}
	return nil
}

func (c *statusTestContext) theStatusIsTerminal() error {
	if !c.status.IsTerminal() {
		return fmt.Errorf("expected %s to be terminal", c.status)
	}
	return nil
}

func (c *statusTestContext) noTransitionFromItIsAccepted() error {
	for _, target := range order.AllStatuses {
		if c.status.CanTransitionTo(target) {
			return fmt.Errorf("unexpected transition %s -> %s", c.status, target)
		}
	}
	return nil
}

func (c *statusTestContext) theOrderCanBeCancelled() error {
	if !c.status.IsCancellable() {
		return fmt.Errorf("expected %s to be cancellable", c.status)
	}
	return nil
}

func (c *statusTestContext) theOrderCannotBeCancelled() error {
	if c.status.IsCancellable() {
		return fmt.Errorf("expected %s not to be cancellable", c.status)
	}
	return nil
}

func (c *statusTestContext) theOrderCanBeRefunded() error {
	if !c.status.IsRefundable() {
		return fmt.Errorf("expected %s to be refundable", c.status)
	}
	return nil
}

func (c *statusTestContext) theOrderCannotBeRefunded() error {
	if c.status.IsRefundable() {
		return fmt.Errorf("expected %s not to be refundable", c.status)
	}
	return nil
}

func (c *statusTestContext) theCustomerNotificationFlagIs(state string) error {
	if err := c.theTransitionIsAccepted(); err != nil {
		return err
	}
	want := state == "set"
	if c.notify != want {
		return fmt.Errorf("expected notification flag %s for %s", state, c.status)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &statusTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^an order in status "([^"]*)"$`, tc.anOrderInStatus)

	// When steps
	ctx.Step(`^the order is moved to "([^"]*)"$`, tc.theOrderIsMovedTo)

	// Then steps
	ctx.Step(`^the transition is accepted$`, tc.theTransitionIsAccepted)
	ctx.Step(`^the transition is rejected$`, tc.theTransitionIsRejected)
	ctx.Step(`^the order status is "([^"]*)"$`, tc.theOrderStatusIs)
	ctx.Step(`^the status is terminal$`, tc.theStatusIsTerminal)
	ctx.Step(`^no transition from it is accepted$`, tc.noTransitionFromItIsAccepted)
	ctx.Step(`^the order can be cancelled$`, tc.theOrderCanBeCancelled)
	ctx.Step(`^the order cannot be cancelled$`, tc.theOrderCannotBeCancelled)
	ctx.Step(`^the order can be refunded$`, tc.theOrderCanBeRefunded)
	ctx.Step(`^the order cannot be refunded$`, tc.theOrderCannotBeRefunded)
	ctx.Step(`^the customer notification flag is (set|unset)$`, tc.theCustomerNotificationFlagIs)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"order_status.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
