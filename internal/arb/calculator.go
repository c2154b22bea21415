package arb

import (
	"fmt"
	"sort"

	"github.com/marketscope/derivscope/internal/adapters"
)

// Opportunity is one ordered-pair arbitrage evaluation.
type Opportunity struct {
	BuyExchange      string   `json:"buy_exchange"`
	SellExchange     string   `json:"sell_exchange"`
	BuyPrice         float64  `json:"buy_price"`  // effective VWAP fill
	SellPrice        float64  `json:"sell_price"` // effective VWAP fill
	RawSpread        float64  `json:"raw_spread"` // best-bid minus best-ask
	EffectiveSpread  float64  `json:"effective_spread"`
	BuySlippage      float64  `json:"buy_slippage"`  // percent
	SellSlippage     float64  `json:"sell_slippage"` // percent
	BuyFee           float64  `json:"buy_fee"`       // USD
	SellFee          float64  `json:"sell_fee"`      // USD
	TotalFees        float64  `json:"total_fees"`    // USD, taker both sides
	WithdrawalFee    float64  `json:"withdrawal_fee"` // USD at current price
	GrossProfit      float64  `json:"gross_profit"`
	NetProfit        float64  `json:"net_profit"`
	NetProfitPercent float64  `json:"net_profit_percent"`
	Executable       bool     `json:"executable"`
	ExecutionNotes   []string `json:"execution_notes"`
	SettlementTime   string   `json:"settlement_time"`
}

// Analysis is the full pairwise evaluation for one symbol and size.
type Analysis struct {
	Symbol         string         `json:"symbol"`
	SizeUSD        float64        `json:"size_usd"`
	Opportunities  []*Opportunity `json:"opportunities"`
	BestExecutable *Opportunity   `json:"best_executable,omitempty"`
	LiquidityScore float64        `json:"liquidity_score"` // USD fillable within 0.1% slippage
}

// liquidityBound is the slippage fraction the liquidity score is measured
// against.
const liquidityBound = 0.001

// Calculator evaluates depth-aware arbitrage across venue order books.
type Calculator struct {
	fees *FeeSchedule
}

// NewCalculator creates a calculator; nil schedule uses the built-in fees.
func NewCalculator(fees *FeeSchedule) *Calculator {
	if fees == nil {
		fees = DefaultFeeSchedule()
	}
	return &Calculator{fees: fees}
}

// AnalyzePair evaluates buying sizeUSD on buyBook's asks and selling on
// sellBook's bids, net of taker fees on both legs and one withdrawal.
func (c *Calculator) AnalyzePair(buyBook, sellBook *adapters.OrderBook, sizeUSD, currentPrice, volume30d float64) *Opportunity {
	buyFill := WalkBook(buyBook.Asks, sizeUSD)
	sellFill := WalkBook(sellBook.Bids, sizeUSD)

	opp := &Opportunity{
		BuyExchange:  buyBook.Venue,
		SellExchange: sellBook.Venue,
		BuyPrice:     buyFill.AveragePrice,
		SellPrice:    sellFill.AveragePrice,
		RawSpread:    sellBook.BestBid() - buyBook.BestAsk(),
		BuySlippage:  buyFill.SlippagePercent,
		SellSlippage: sellFill.SlippagePercent,
	}
	opp.EffectiveSpread = opp.SellPrice - opp.BuyPrice

	if opp.BuyPrice > 0 {
		opp.GrossProfit = opp.EffectiveSpread / opp.BuyPrice * sizeUSD
	}
	opp.BuyFee = sizeUSD * c.fees.TakerRate(buyBook.Venue, volume30d)
	opp.SellFee = sizeUSD * c.fees.TakerRate(sellBook.Venue, volume30d)
	opp.TotalFees = opp.BuyFee + opp.SellFee
	opp.WithdrawalFee = c.fees.WithdrawalFee(buyBook.Venue) * currentPrice
	opp.NetProfit = opp.GrossProfit - opp.TotalFees - opp.WithdrawalFee
	if sizeUSD > 0 {
		opp.NetProfitPercent = opp.NetProfit / sizeUSD * 100
	}

	fullyFilled := buyFill.RemainingUSD <= 0 && sellFill.RemainingUSD <= 0
	opp.Executable = opp.NetProfit > 0 && fullyFilled

	if buyFill.RemainingUSD > 0 {
		opp.ExecutionNotes = append(opp.ExecutionNotes,
			fmt.Sprintf("%s ask side too thin: $%.0f unfilled", buyBook.Venue, buyFill.RemainingUSD))
	}
	if sellFill.RemainingUSD > 0 {
		opp.ExecutionNotes = append(opp.ExecutionNotes,
			fmt.Sprintf("%s bid side too thin: $%.0f unfilled", sellBook.Venue, sellFill.RemainingUSD))
	}
	if opp.Executable {
		opp.ExecutionNotes = append(opp.ExecutionNotes,
			fmt.Sprintf("net $%.2f after $%.2f fees and $%.2f withdrawal", opp.NetProfit, opp.TotalFees, opp.WithdrawalFee))
	}
	opp.SettlementTime = "10-30 min on-chain transfer"
	return opp
}

// Analyze evaluates every ordered venue pair with a raw spread, sorted by
// net profit descending, and reports the best executable opportunity plus a
// liquidity score.
func (c *Calculator) Analyze(symbol string, books map[string]*adapters.OrderBook, sizeUSD, currentPrice, volume30d float64) *Analysis {
	analysis := &Analysis{Symbol: symbol, SizeUSD: sizeUSD}

	venues := make([]string, 0, len(books))
	for venue := range books {
		venues = append(venues, venue)
	}
	sort.Strings(venues)

	for _, buyVenue := range venues {
		for _, sellVenue := range venues {
			if buyVenue == sellVenue {
				continue
			}
			buyBook, sellBook := books[buyVenue], books[sellVenue]
			if sellBook.BestBid() <= buyBook.BestAsk() {
				continue
			}
			analysis.Opportunities = append(analysis.Opportunities,
				c.AnalyzePair(buyBook, sellBook, sizeUSD, currentPrice, volume30d))
		}
	}

	sort.Slice(analysis.Opportunities, func(i, j int) bool {
		return analysis.Opportunities[i].NetProfit > analysis.Opportunities[j].NetProfit
	})
	for _, opp := range analysis.Opportunities {
		if opp.Executable {
			analysis.BestExecutable = opp
			break
		}
	}

	analysis.LiquidityScore = liquidityScore(books)
	return analysis
}

// liquidityScore averages, across venues, the USD size fillable within the
// slippage bound on each venue's thinner side.
func liquidityScore(books map[string]*adapters.OrderBook) float64 {
	if len(books) == 0 {
		return 0
	}

	total := 0.0
	for _, book := range books {
		bidSize := MaxSizeWithinSlippage(book.Bids, liquidityBound)
		askSize := MaxSizeWithinSlippage(book.Asks, liquidityBound)
		if bidSize < askSize {
			total += bidSize
		} else {
			total += askSize
		}
	}
	return total / float64(len(books))
}
