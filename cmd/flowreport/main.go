package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// flowreport 汇总 bookwatch 日志中的 trade_print 事件（需要 log.level=debug）。
type report struct {
	Trades     int
	BuyVolume  decimal.Decimal
	SellVolume decimal.Decimal
	BuyNotion  decimal.Decimal
	SellNotion decimal.Decimal
	FirstID    int64
	LastID     int64
}

// BuyPercent 与成交带的流向比例口径一致：按数量计算。
func (r report) BuyPercent() float64 {
	total := r.BuyVolume.Add(r.SellVolume)
	if total.IsZero() {
		return 0
	}
	pct, _ := r.BuyVolume.Div(total).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

type tradeLine struct {
	Event  string      `json:"event"`
	TS     string      `json:"ts"`
	Symbol string      `json:"symbol"`
	ID     json.Number `json:"id"`
	Price  string      `json:"price"`
	Qty    string      `json:"qty"`
	Side   string      `json:"side"`
}

func summarize(r io.Reader, symbol string, since time.Time) (report, error) {
	rep := report{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, "{")
		if idx == -1 {
			continue
		}
		var evt tradeLine
		if err := json.Unmarshal([]byte(line[idx:]), &evt); err != nil {
			continue
		}
		if evt.Event != "trade_print" {
			continue
		}
		if symbol != "" && !strings.EqualFold(evt.Symbol, symbol) {
			continue
		}
		if !since.IsZero() {
			if ts, err := time.Parse(time.RFC3339Nano, evt.TS); err == nil && ts.Before(since) {
				continue
			}
		}
		price, err := decimal.NewFromString(evt.Price)
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(evt.Qty)
		if err != nil {
			continue
		}
		id, _ := evt.ID.Int64()
		if rep.Trades == 0 {
			rep.FirstID = id
		}
		rep.LastID = id
		rep.Trades++
		notion := price.Mul(qty)
		switch evt.Side {
		case "buy":
			rep.BuyVolume = rep.BuyVolume.Add(qty)
			rep.BuyNotion = rep.BuyNotion.Add(notion)
		case "sell":
			rep.SellVolume = rep.SellVolume.Add(qty)
			rep.SellNotion = rep.SellNotion.Add(notion)
		}
	}
	return rep, scanner.Err()
}

func main() {
	logPath := flag.String("log", "/var/log/market-mirror/bookwatch.log", "bookwatch 日志路径")
	symbol := flag.String("symbol", "", "仅统计指定交易对 (默认全量)")
	sinceStr := flag.String("since", "", "仅统计此时间之后的记录 (RFC3339，例如 2025-11-22T00:00:00Z)")
	flag.Parse()

	var since time.Time
	var err error
	if *sinceStr != "" {
		since, err = time.Parse(time.RFC3339Nano, *sinceStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "解析 since 参数失败: %v\n", err)
			os.Exit(1)
		}
	}

	f, err := os.Open(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法读取日志: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	rep, err := summarize(f, *symbol, since)
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取日志出错: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("统计文件: %s\n", *logPath)
	if *symbol != "" {
		fmt.Printf("交易对: %s\n", *symbol)
	}
	if !since.IsZero() {
		fmt.Printf("起始时间: %s\n", since.Format(time.RFC3339))
	}
	fmt.Printf("成交笔数: %d (id %d..%d)\n", rep.Trades, rep.FirstID, rep.LastID)
	fmt.Printf("主动买量: %s  名义: %s\n", rep.BuyVolume, rep.BuyNotion.StringFixed(4))
	fmt.Printf("主动卖量: %s  名义: %s\n", rep.SellVolume, rep.SellNotion.StringFixed(4))
	fmt.Printf("买方占比: %.2f%%\n", rep.BuyPercent())
}
