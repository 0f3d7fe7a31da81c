package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/shopspring/decimal"

	"github.com/alim08/marketgql/pkg/models"
	"github.com/alim08/marketgql/pkg/operations"
	"github.com/alim08/marketgql/pkg/sink"
	"github.com/alim08/marketgql/pkg/validation"
)

// timestampType serializes time.Time and epoch milliseconds as RFC3339.
var timestampType = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "Timestamp",
	Description: "RFC3339 timestamp; inputs also accept epoch milliseconds",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case time.Time:
			return v.UTC().Format(time.RFC3339Nano)
		case int64:
			return time.UnixMilli(v).UTC().Format(time.RFC3339Nano)
		default:
			return nil
		}
	},
	ParseValue: func(value interface{}) interface{} {
		switch v := value.(type) {
		case string:
			return parseTimestamp(v)
		case float64:
			return time.UnixMilli(int64(v))
		case int:
			return time.UnixMilli(int64(v))
		default:
			return nil
		}
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		switch v := valueAST.(type) {
		case *ast.StringValue:
			return parseTimestamp(v.Value)
		case *ast.IntValue:
			return parseTimestamp(v.Value)
		default:
			return nil
		}
	},
})

func parseTimestamp(s string) interface{} {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return nil
}

func decimalValue(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.InexactFloat64()
}

func tokenObject(r models.TokenFilterResult) map[string]interface{} {
	out := map[string]interface{}{
		"priceUSD":  decimalValue(r.PriceUSD),
		"marketCap": decimalValue(r.MarketCap),
		"liquidity": decimalValue(r.Liquidity),
		"volume24":  decimalValue(r.Volume24),
		"change24":  decimalValue(r.Change24),
	}
	if r.Holders != nil {
		out["holders"] = *r.Holders
	}
	if t := r.Token; t != nil {
		out["tokenKey"] = fmt.Sprintf("%d:%s", t.NetworkID, t.Address)
		out["address"] = t.Address
		out["networkId"] = t.NetworkID
		out["name"] = models.Deref(t.Name)
		out["symbol"] = t.DisplaySymbol()
		if t.CreatedAt != nil {
			out["createdAt"] = time.Unix(*t.CreatedAt, 0)
		}
	}
	return out
}

// latestObject converts a cachepub hash into typed GraphQL values.
func latestObject(st LatestState) map[string]interface{} {
	out := map[string]interface{}{
		"tokenKey":  st.TokenKey,
		"address":   st.Fields["address"],
		"protocol":  st.Fields["protocol"],
		"eventType": st.Fields["eventType"],
		"symbol":    st.Fields["symbol"],
	}
	if v, err := strconv.Atoi(st.Fields["networkId"]); err == nil {
		out["networkId"] = v
	}
	if v, err := strconv.Atoi(st.Fields["holders"]); err == nil {
		out["holders"] = v
	}
	for _, f := range []string{"price", "marketCap", "liquidity"} {
		if v, err := strconv.ParseFloat(st.Fields[f], 64); err == nil {
			out[f] = v
		}
	}
	if v, err := strconv.ParseInt(st.Fields["received_ms"], 10, 64); err == nil {
		out["receivedAt"] = v
	}
	return out
}

func anomalyObject(a models.PriceAnomaly) map[string]interface{} {
	return map[string]interface{}{
		"tokenKey":  a.TokenKey,
		"address":   a.Address,
		"networkId": a.NetworkID,
		"protocol":  a.Protocol,
		"eventType": string(a.EventType),
		"price":     a.Price,
		"mean":      a.Mean,
		"stdDev":    a.StdDev,
		"zScore":    a.ZScore,
		"timestamp": a.Timestamp,
	}
}

func fields(defs map[string]graphql.Output) graphql.Fields {
	out := graphql.Fields{}
	for name, t := range defs {
		out[name] = &graphql.Field{Type: t}
	}
	return out
}

// createSchema builds the read-only GraphQL view over cached and archived
// launchpad data.
func (s *Server) createSchema() (graphql.Schema, error) {
	tokenType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Token",
		Fields: fields(map[string]graphql.Output{
			"tokenKey":  graphql.String,
			"address":   graphql.String,
			"networkId": graphql.Int,
			"name":      graphql.String,
			"symbol":    graphql.String,
			"priceUSD":  graphql.Float,
			"marketCap": graphql.Float,
			"liquidity": graphql.Float,
			"volume24":  graphql.Float,
			"change24":  graphql.Float,
			"holders":   graphql.Int,
			"createdAt": timestampType,
		}),
	})

	latestStateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LatestState",
		Fields: fields(map[string]graphql.Output{
			"tokenKey":   graphql.String,
			"address":    graphql.String,
			"networkId":  graphql.Int,
			"protocol":   graphql.String,
			"eventType":  graphql.String,
			"symbol":     graphql.String,
			"price":      graphql.Float,
			"marketCap":  graphql.Float,
			"liquidity":  graphql.Float,
			"holders":    graphql.Int,
			"receivedAt": timestampType,
		}),
	})

	anomalyType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Anomaly",
		Fields: fields(map[string]graphql.Output{
			"tokenKey":  graphql.String,
			"address":   graphql.String,
			"networkId": graphql.Int,
			"protocol":  graphql.String,
			"eventType": graphql.String,
			"price":     graphql.Float,
			"mean":      graphql.Float,
			"stdDev":    graphql.Float,
			"zScore":    graphql.Float,
			"timestamp": timestampType,
		}),
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"launchpadTokens": &graphql.Field{
				Type: graphql.NewList(tokenType),
				Args: graphql.FieldConfigArgument{
					"protocol":  &graphql.ArgumentConfig{Type: graphql.String},
					"networkId": &graphql.ArgumentConfig{Type: graphql.Int},
					"limit":     &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: defaultPerPage},
					"offset":    &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					filters := &models.TokenFilters{}
					if protocol, ok := p.Args["protocol"].(string); ok {
						filters.LaunchpadProtocol = []string{protocol}
					}
					if network, ok := p.Args["networkId"].(int); ok {
						filters.Network = []int{network}
					}
					limit, _ := p.Args["limit"].(int)
					offset, _ := p.Args["offset"].(int)
					res, err := s.tokens.LaunchpadTokens(p.Context, operations.LaunchpadTokensVariables{
						Filters: filters,
						Rankings: []models.TokenRanking{
							models.RankBy(models.TokenRankingAttributeCreatedAt, models.RankingDirectionDesc),
						},
						Limit:  models.Ptr(limit),
						Offset: models.Ptr(offset),
					})
					if err != nil && !isPartial(res, err) {
						return nil, err
					}
					var out []map[string]interface{}
					if res != nil && res.FilterTokens != nil {
						for _, t := range res.FilterTokens.Tokens() {
							out = append(out, tokenObject(t))
						}
					}
					return out, nil
				},
			},
			"latestState": &graphql.Field{
				Type: latestStateType,
				Args: graphql.FieldConfigArgument{
					"networkId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"address":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					key := fmt.Sprintf("%d:%s", p.Args["networkId"].(int), validation.SanitizeAddress(p.Args["address"].(string)))
					f, err := s.redis.HGetAll(p.Context, sink.LatestKeyPrefix+key)
					if err != nil || len(f) == 0 {
						return nil, err
					}
					return latestObject(LatestState{TokenKey: key, Fields: f}), nil
				},
			},
			"latestStates": &graphql.Field{
				Type: graphql.NewList(latestStateType),
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					limit, _ := p.Args["limit"].(int)
					if limit < 1 || limit > maxLatestStates {
						limit = 100
					}
					states, err := s.latestStates(p.Context, limit)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, 0, len(states))
					for _, st := range states {
						out = append(out, latestObject(st))
					}
					return out, nil
				},
			},
			"anomalies": &graphql.Field{
				Type: graphql.NewList(anomalyType),
				Args: graphql.FieldConfigArgument{
					"token": &graphql.ArgumentConfig{Type: graphql.String},
					"since": &graphql.ArgumentConfig{Type: timestampType},
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					token, _ := p.Args["token"].(string)
					since, _ := p.Args["since"].(time.Time)
					limit, _ := p.Args["limit"].(int)
					anomalies, err := s.anomalies(p.Context, token, since, limit)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, 0, len(anomalies))
					for _, a := range anomalies {
						out = append(out, anomalyObject(a))
					}
					return out, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

type graphqlRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

func (s *Server) graphqlHandler(w http.ResponseWriter, r *http.Request) {
	var req graphqlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid GraphQL request body")
		return
	}
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result := graphql.Do(graphql.Params{
		Schema:         s.schema,
		RequestString:  req.Query,
		OperationName:  req.OperationName,
		VariableValues: req.Variables,
		Context:        ctx,
	})
	s.writeJSON(w, http.StatusOK, result)
}
