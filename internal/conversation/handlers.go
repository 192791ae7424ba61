package conversation

import (
	"context"
	"fmt"
	"time"
)

// handlerFunc resolves one latched intent against the dialogue state and the
// data backend.
type handlerFunc func(ctx context.Context, o *Orchestrator, st *State) (TurnResult, error)

// defaultHandlers maps every member of the Intent set except Unknown, which
// is never dispatched.
//
// Stubbed or escalated intents:
//   - RenewSubscription replies with the current subscription and points the
//     driver at the station/app renewal flow.
//   - PricingInfo replies from the static pricing table.
//   - ExplainInvoice, LeaveInfo and FindDSK escalate: these need either
//     account documents or a human decision.
func defaultHandlers() map[Intent]handlerFunc {
	return map[Intent]handlerFunc{
		IntentFindNearestStation: handleFindNearestStation,
		IntentGetSwapHistory:     handleGetSwapHistory,
		IntentCheckSubscription:  handleCheckSubscription,
		IntentRenewSubscription:  handleRenewSubscription,
		IntentCheckAvailability:  handleCheckAvailability,
		IntentPricingInfo:        handlePricingInfo,
		IntentExplainInvoice:     escalatingHandler("invoice explanation requires an agent"),
		IntentLeaveInfo:          escalatingHandler("leave requests require an agent"),
		IntentFindDSK:            escalatingHandler("dsk lookup requires an agent"),
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, st *State) (TurnResult, error) {
	start := time.Now()
	h, ok := o.handlers[st.CurrentIntent]
	if !ok {
		return TurnResult{}, fmt.Errorf("no handler for intent %q", st.CurrentIntent)
	}
	res, err := h(ctx, o, st)
	if o.metrics != nil {
		o.metrics.ObserveStage("dispatch", time.Since(start))
	}
	return res, err
}

func handleFindNearestStation(ctx context.Context, o *Orchestrator, st *State) (TurnResult, error) {
	location, ok := st.Slots["location"]
	if !ok {
		return TurnResult{ReplyText: o.prompts.Pick(BucketElicitLocation, st.Language, st.ConversationID, len(st.History))}, nil
	}

	station, err := o.nearestStation(ctx, location)
	if err != nil {
		return TurnResult{}, err
	}

	st.CurrentIntent = ""
	var reply string
	switch st.Language {
	case LangHI:
		reply = fmt.Sprintf("निकटतम स्टेशन %s है, %s पर।", station.Name, station.Address)
	default:
		reply = fmt.Sprintf("The nearest station is %s at %s.", station.Name, station.Address)
	}
	return TurnResult{
		ReplyText: reply,
		ShouldEnd: true,
		Data: map[string]any{
			"station_name":    station.Name,
			"station_address": station.Address,
		},
	}, nil
}

func handleGetSwapHistory(ctx context.Context, o *Orchestrator, st *State) (TurnResult, error) {
	dateRange, ok := st.Slots["date_range"]
	if !ok {
		return TurnResult{ReplyText: o.prompts.Pick(BucketElicitDateRange, st.Language, st.ConversationID, len(st.History))}, nil
	}

	records, err := o.swapHistory(ctx, st.DriverID, dateRange)
	if err != nil {
		return TurnResult{}, err
	}

	st.CurrentIntent = ""
	if len(records) == 0 {
		var reply string
		switch st.Language {
		case LangHI:
			reply = fmt.Sprintf("%s के लिए कोई swap नहीं मिला।", dateRange)
		default:
			reply = fmt.Sprintf("I couldn't find any swaps for %s.", dateRange)
		}
		return TurnResult{ReplyText: reply, ShouldEnd: true}, nil
	}

	last := records[len(records)-1].Time
	var reply string
	switch st.Language {
	case LangHI:
		reply = fmt.Sprintf("%s के लिए %d swap मिले। आखिरी swap %s पर हुआ था।", dateRange, len(records), last)
	default:
		reply = fmt.Sprintf("I found %d %s for %s. The most recent was at %s.", len(records), pluralSwaps(len(records)), dateRange, last)
	}
	return TurnResult{
		ReplyText: reply,
		ShouldEnd: true,
		Data: map[string]any{
			"swap_count":     len(records),
			"last_swap_time": last,
		},
	}, nil
}

func handleCheckSubscription(ctx context.Context, o *Orchestrator, st *State) (TurnResult, error) {
	sub, err := o.subscription(ctx, st.DriverID)
	if err != nil {
		return TurnResult{}, err
	}

	st.CurrentIntent = ""
	var reply string
	switch st.Language {
	case LangHI:
		reply = fmt.Sprintf("आपका सब्सक्रिप्शन %s है और %s तक वैध है।", sub.Status, sub.Expiry)
	default:
		reply = fmt.Sprintf("Your subscription is %s and valid until %s.", sub.Status, sub.Expiry)
	}
	return TurnResult{
		ReplyText: reply,
		ShouldEnd: true,
		Data: map[string]any{
			"status": sub.Status,
			"expiry": sub.Expiry,
		},
	}, nil
}

func handleRenewSubscription(ctx context.Context, o *Orchestrator, st *State) (TurnResult, error) {
	sub, err := o.subscription(ctx, st.DriverID)
	if err != nil {
		return TurnResult{}, err
	}

	st.CurrentIntent = ""
	var reply string
	switch st.Language {
	case LangHI:
		reply = fmt.Sprintf("आपका सब्सक्रिप्शन %s तक वैध है। आप किसी भी swap स्टेशन पर या app से renew कर सकते हैं।", sub.Expiry)
	default:
		reply = fmt.Sprintf("Your subscription is valid until %s. You can renew it at any swap station or from the app.", sub.Expiry)
	}
	return TurnResult{ReplyText: reply, ShouldEnd: true}, nil
}

func handleCheckAvailability(ctx context.Context, o *Orchestrator, st *State) (TurnResult, error) {
	location, ok := st.Slots["location"]
	if !ok {
		return TurnResult{ReplyText: o.prompts.Pick(BucketElicitLocation, st.Language, st.ConversationID, len(st.History))}, nil
	}

	avail, err := o.availability(ctx, location)
	if err != nil {
		return TurnResult{}, err
	}

	st.CurrentIntent = ""
	var reply string
	switch st.Language {
	case LangHI:
		reply = fmt.Sprintf("%s पर अभी %d बैटरियां उपलब्ध हैं।", avail.StationName, avail.Batteries)
	default:
		reply = fmt.Sprintf("%s has %d batteries available right now.", avail.StationName, avail.Batteries)
	}
	return TurnResult{
		ReplyText: reply,
		ShouldEnd: true,
		Data: map[string]any{
			"station_name": avail.StationName,
			"batteries":    avail.Batteries,
		},
	}, nil
}

func handlePricingInfo(_ context.Context, o *Orchestrator, st *State) (TurnResult, error) {
	st.CurrentIntent = ""
	return TurnResult{
		ReplyText: o.prompts.Pick(BucketPricing, st.Language, st.ConversationID, len(st.History)),
		ShouldEnd: true,
	}, nil
}

func escalatingHandler(reason string) handlerFunc {
	return func(ctx context.Context, o *Orchestrator, st *State) (TurnResult, error) {
		return o.escalate(ctx, st, reason), nil
	}
}

func pluralSwaps(n int) string {
	if n == 1 {
		return "swap"
	}
	return "swaps"
}

func (o *Orchestrator) nearestStation(ctx context.Context, location string) (Station, error) {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.DataTimeout)
	defer cancel()
	s, err := o.data.NearestStation(cctx, location)
	if err != nil {
		ae := classifyAdapterError("data", err)
		o.noteAdapterFailure(ae)
		return Station{}, ae
	}
	if o.monitor != nil {
		o.monitor.RecordSuccess("data")
	}
	return s, nil
}

func (o *Orchestrator) swapHistory(ctx context.Context, driverID, dateRange string) ([]SwapRecord, error) {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.DataTimeout)
	defer cancel()
	records, err := o.data.SwapHistory(cctx, driverID, dateRange)
	if err != nil {
		ae := classifyAdapterError("data", err)
		o.noteAdapterFailure(ae)
		return nil, ae
	}
	if o.monitor != nil {
		o.monitor.RecordSuccess("data")
	}
	return records, nil
}

func (o *Orchestrator) subscription(ctx context.Context, driverID string) (SubscriptionInfo, error) {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.DataTimeout)
	defer cancel()
	sub, err := o.data.Subscription(cctx, driverID)
	if err != nil {
		ae := classifyAdapterError("data", err)
		o.noteAdapterFailure(ae)
		return SubscriptionInfo{}, ae
	}
	if o.monitor != nil {
		o.monitor.RecordSuccess("data")
	}
	return sub, nil
}

func (o *Orchestrator) availability(ctx context.Context, location string) (AvailabilityInfo, error) {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.DataTimeout)
	defer cancel()
	avail, err := o.data.Availability(cctx, location)
	if err != nil {
		ae := classifyAdapterError("data", err)
		o.noteAdapterFailure(ae)
		return AvailabilityInfo{}, ae
	}
	if o.monitor != nil {
		o.monitor.RecordSuccess("data")
	}
	return avail, nil
}
