package stripeclient

import (
	"context"
	"strconv"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/charge"
	"github.com/stripe/stripe-go/v83/checkoutsession"
	"github.com/stripe/stripe-go/v83/creditnote"
	"github.com/stripe/stripe-go/v83/customer"
	"github.com/stripe/stripe-go/v83/dispute"
	"github.com/stripe/stripe-go/v83/invoice"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/paymentmethod"
	"github.com/stripe/stripe-go/v83/plan"
	"github.com/stripe/stripe-go/v83/price"
	"github.com/stripe/stripe-go/v83/product"
	"github.com/stripe/stripe-go/v83/radar/earlyfraudwarning"
	"github.com/stripe/stripe-go/v83/refund"
	"github.com/stripe/stripe-go/v83/setupintent"
	"github.com/stripe/stripe-go/v83/subscription"
	"github.com/stripe/stripe-go/v83/subscriptionschedule"
	"github.com/stripe/stripe-go/v83/taxid"
)

// ObjectPage is one page of raw provider objects, each already encoded as
// its wire JSON (spec §4.4: every mirror row keeps the raw payload).
type ObjectPage struct {
	Objects []RawObject
	HasMore bool
}

// RawObject pairs an object's id with its JSON-marshaled payload, deferring
// field projection to the kind-specific projector (spec §4.4).
type RawObject struct {
	ID  string
	JSON []byte
}

// ListPageParams are the pagination inputs every List* function accepts.
type ListPageParams struct {
	StartingAfter string
	Limit         int64
	CreatedGTE    int64 // 0 means unset
}

func listParams(p ListPageParams) stripe.ListParams {
	// Single stops the iterator from fetching further pages, so each List*
	// call returns exactly one page and that page's has_more.
	lp := stripe.ListParams{Limit: stripe.Int64(p.Limit), Single: true}
	if p.StartingAfter != "" {
		lp.StartingAfter = stripe.String(p.StartingAfter)
	}
	if p.CreatedGTE != 0 {
		lp.Filters.AddFilter("created", "gte", strconv.FormatInt(p.CreatedGTE, 10))
	}
	return lp
}

// ListProducts lists one page of products, customer-facing catalog entries
// that every price/plan references (spec §6 kind=products).
func (c *Client) ListProducts(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "product.list", func() error {
		out = ObjectPage{}
		params := &stripe.ProductListParams{ListParams: listParams(p)}
		iter := product.List(ctx, params)
		for iter.Next() {
			obj := iter.Product()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.ProductList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListPrices lists one page of prices.
func (c *Client) ListPrices(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "price.list", func() error {
		out = ObjectPage{}
		params := &stripe.PriceListParams{ListParams: listParams(p)}
		iter := price.List(ctx, params)
		for iter.Next() {
			obj := iter.Price()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.PriceList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListPlans lists one page of plans (legacy pre-Price billing object, still
// mirrored per spec §6).
func (c *Client) ListPlans(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "plan.list", func() error {
		out = ObjectPage{}
		params := &stripe.PlanListParams{ListParams: listParams(p)}
		iter := plan.List(ctx, params)
		for iter.Next() {
			obj := iter.Plan()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.PlanList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListCustomers lists one page of customers.
func (c *Client) ListCustomers(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "customer.list", func() error {
		out = ObjectPage{}
		params := &stripe.CustomerListParams{ListParams: listParams(p)}
		iter := customer.List(ctx, params)
		for iter.Next() {
			obj := iter.Customer()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.CustomerList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListTaxIDs lists one page of tax ids.
func (c *Client) ListTaxIDs(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "taxid.list", func() error {
		out = ObjectPage{}
		params := &stripe.TaxIDListParams{ListParams: listParams(p)}
		iter := taxid.List(ctx, params)
		for iter.Next() {
			obj := iter.TaxID()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.TaxIDList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListPaymentMethods lists one page of payment methods.
func (c *Client) ListPaymentMethods(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "paymentmethod.list", func() error {
		out = ObjectPage{}
		params := &stripe.PaymentMethodListParams{ListParams: listParams(p)}
		iter := paymentmethod.List(ctx, params)
		for iter.Next() {
			obj := iter.PaymentMethod()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.PaymentMethodList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListSetupIntents lists one page of setup intents.
func (c *Client) ListSetupIntents(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "setupintent.list", func() error {
		out = ObjectPage{}
		params := &stripe.SetupIntentListParams{ListParams: listParams(p)}
		iter := setupintent.List(ctx, params)
		for iter.Next() {
			obj := iter.SetupIntent()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.SetupIntentList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListSubscriptions lists one page of subscriptions.
func (c *Client) ListSubscriptions(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "subscription.list", func() error {
		out = ObjectPage{}
		params := &stripe.SubscriptionListParams{ListParams: listParams(p)}
		params.Status = stripe.String("all")
		iter := subscription.List(ctx, params)
		for iter.Next() {
			obj := iter.Subscription()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.SubscriptionList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListSubscriptionSchedules lists one page of subscription schedules.
func (c *Client) ListSubscriptionSchedules(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "subscriptionschedule.list", func() error {
		out = ObjectPage{}
		params := &stripe.SubscriptionScheduleListParams{ListParams: listParams(p)}
		iter := subscriptionschedule.List(ctx, params)
		for iter.Next() {
			obj := iter.SubscriptionSchedule()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.SubscriptionScheduleList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListInvoices lists one page of invoices.
func (c *Client) ListInvoices(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "invoice.list", func() error {
		out = ObjectPage{}
		params := &stripe.InvoiceListParams{ListParams: listParams(p)}
		iter := invoice.List(ctx, params)
		for iter.Next() {
			obj := iter.Invoice()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.InvoiceList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListCharges lists one page of charges.
func (c *Client) ListCharges(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "charge.list", func() error {
		out = ObjectPage{}
		params := &stripe.ChargeListParams{ListParams: listParams(p)}
		iter := charge.List(ctx, params)
		for iter.Next() {
			obj := iter.Charge()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.ChargeList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListPaymentIntents lists one page of payment intents.
func (c *Client) ListPaymentIntents(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "paymentintent.list", func() error {
		out = ObjectPage{}
		params := &stripe.PaymentIntentListParams{ListParams: listParams(p)}
		iter := paymentintent.List(ctx, params)
		for iter.Next() {
			obj := iter.PaymentIntent()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.PaymentIntentList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListRefunds lists one page of refunds.
func (c *Client) ListRefunds(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "refund.list", func() error {
		out = ObjectPage{}
		params := &stripe.RefundListParams{ListParams: listParams(p)}
		iter := refund.List(ctx, params)
		for iter.Next() {
			obj := iter.Refund()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.RefundList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListDisputes lists one page of disputes.
func (c *Client) ListDisputes(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "dispute.list", func() error {
		out = ObjectPage{}
		params := &stripe.DisputeListParams{ListParams: listParams(p)}
		iter := dispute.List(ctx, params)
		for iter.Next() {
			obj := iter.Dispute()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.DisputeList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListCreditNotes lists one page of credit notes.
func (c *Client) ListCreditNotes(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "creditnote.list", func() error {
		out = ObjectPage{}
		params := &stripe.CreditNoteListParams{ListParams: listParams(p)}
		iter := creditnote.List(ctx, params)
		for iter.Next() {
			obj := iter.CreditNote()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.CreditNoteList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListEarlyFraudWarnings lists one page of radar early fraud warnings.
func (c *Client) ListEarlyFraudWarnings(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "earlyfraudwarning.list", func() error {
		out = ObjectPage{}
		params := &stripe.RadarEarlyFraudWarningListParams{ListParams: listParams(p)}
		iter := earlyfraudwarning.List(ctx, params)
		for iter.Next() {
			obj := iter.RadarEarlyFraudWarning()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.RadarEarlyFraudWarningList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

// ListCheckoutSessions lists one page of checkout sessions.
func (c *Client) ListCheckoutSessions(ctx context.Context, p ListPageParams) (ObjectPage, error) {
	var out ObjectPage
	err := c.withRetry(ctx, "checkoutsession.list", func() error {
		out = ObjectPage{}
		params := &stripe.CheckoutSessionListParams{ListParams: listParams(p)}
		iter := checkoutsession.List(ctx, params)
		for iter.Next() {
			obj := iter.CheckoutSession()
			out.Objects = append(out.Objects, toRaw(obj.ID, obj))
		}
		out.HasMore = iter.CheckoutSessionList().ListMeta.HasMore
		return iter.Err()
	})
	return out, err
}

func toRaw(id string, obj any) RawObject {
	b, _ := marshalJSON(obj)
	return RawObject{ID: id, JSON: b}
}
