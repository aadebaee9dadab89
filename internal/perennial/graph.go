package perennial

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const openOrdersQuery = `query OpenOrders($account: Bytes!, $markets: [Bytes!], $first: Int!, $skip: Int!, $sideNot: Int) {
  multiInvokerTriggerOrders(
    where: {account: $account, market_in: $markets, executed: false, cancelled: false, triggerOrderSide_not: $sideNot}
    first: $first
    skip: $skip
    orderBy: blockTimestamp
    orderDirection: desc
  ) {
    id
    market
    side: triggerOrderSide
    comparison: triggerOrderComparison
    price: triggerOrderPrice
    delta: triggerOrderDelta
    executed
    cancelled
    blockTimestamp
  }
}`

const makerSideExcluded = -1

// GraphClient queries the Perennial subgraph.
type GraphClient struct {
	client *resty.Client
	log    *zap.Logger
}

// NewGraphClient builds a client for the indexer at url. Reads are never retried.
func NewGraphClient(url string, timeout time.Duration, log *zap.Logger) *GraphClient {
	if log == nil {
		log = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(url, "/")).
		SetHeader("Content-Type", "application/json").
		SetLogger(log.Sugar())
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &GraphClient{client: client, log: log}
}

type graphRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphResponse struct {
	Data   map[string]any `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Query posts a GraphQL document and returns its data object.
func (c *GraphClient) Query(ctx context.Context, query string, variables map[string]any) (map[string]any, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("graph client not configured")
	}
	var out graphResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(graphRequest{Query: query, Variables: variables}).
		SetResult(&out).
		Post("")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		body := resp.String()
		if len(body) > 2048 {
			body = body[:2048]
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode(), body)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}
	if out.Data == nil {
		return nil, errors.New("graphql response missing data")
	}
	return out.Data, nil
}

// OpenOrders returns unexecuted, uncancelled trigger orders for an account.
// Maker-side orders are excluded unless the query asks for them.
func (c *GraphClient) OpenOrders(ctx context.Context, q OpenOrdersQuery) ([]OpenOrderRecord, error) {
	markets := make([]string, 0, len(q.Markets))
	for _, m := range q.Markets {
		markets = append(markets, strings.ToLower(m.Hex()))
	}
	first := q.First
	if first <= 0 {
		first = 100
	}
	vars := map[string]any{
		"account": strings.ToLower(q.Address.Hex()),
		"markets": markets,
		"first":   first,
		"skip":    q.Skip,
	}
	if q.IsMaker {
		vars["sideNot"] = makerSideExcluded
	} else {
		vars["sideNot"] = 0
	}
	data, err := c.Query(ctx, openOrdersQuery, vars)
	if err != nil {
		return nil, err
	}
	rows, ok := toSlice(data["multiInvokerTriggerOrders"])
	if !ok {
		return nil, errors.New("graphql response missing multiInvokerTriggerOrders")
	}
	records := make([]OpenOrderRecord, 0, len(rows))
	for _, row := range rows {
		m, ok := toMap(row)
		if !ok {
			c.log.Debug("skipping malformed order row")
			continue
		}
		records = append(records, parseOpenOrder(m))
	}
	return records, nil
}

func parseOpenOrder(m map[string]any) OpenOrderRecord {
	rec := OpenOrderRecord{
		ID:     stringFromMap(m, "id"),
		Status: orderStatus(m),
	}
	if raw := stringFromMap(m, "market"); common.IsHexAddress(raw) {
		addr := common.HexToAddress(raw)
		rec.Market = &addr
	}
	if code, ok := intFromAny(m["side"]); ok {
		if side, ok := sideFromCode(code); ok {
			rec.Side = &side
		}
	}
	if code, ok := intFromAny(m["comparison"]); ok {
		if cmp, ok := comparisonFromCode(code); ok {
			rec.Comparison = string(cmp)
		}
	} else if s := stringFromAny(m["comparison"]); s != "" {
		rec.Comparison = strings.ToLower(s)
	}
	rec.Price, _ = bigFromAny(m["price"])
	rec.Delta, _ = bigFromAny(m["delta"])
	if ts, ok := bigFromAny(m["blockTimestamp"]); ok && ts.IsInt64() {
		v := ts.Int64()
		rec.BlockTimestamp = &v
	}
	return rec
}

func orderStatus(m map[string]any) string {
	switch {
	case boolFromAny(m["cancelled"]):
		return "cancelled"
	case boolFromAny(m["executed"]):
		return "executed"
	}
	if s := stringFromMap(m, "status"); s != "" {
		return s
	}
	return "pending"
}
