package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/jessevdk/go-flags"

	ftdc "github.com/b1ron/ftdc"
)

func main() {
	opts := struct{}{}
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("decode", "decode diagnostic files into raw JSON output", "", &DecodeCommand{})
	parser.AddCommand("stats", "read diagnostic file(s) into aggregated statistical output", "", &StatsCommand{})
	parser.AddCommand("compare", "compare statistical output", "", &CompareCommand{})

	_, err := parser.Parse()
	if err != nil {
		os.Exit(1)
	}
}

type DecodeCommand struct {
	StartTime string `long:"start" value-name:"<TIME>" description:"clip data preceding start time (layout UnixDate)"`
	EndTime   string `long:"end" value-name:"<TIME>" description:"clip data after end time (layout UnixDate)"`
	Merge     bool   `short:"m" long:"merge" description:"merge chunks into one object"`
	Out       string `short:"o" long:"out" value-name:"<FILE>" description:"write diagnostic output, in JSON, to given file" required:"true"`
	Silent    bool   `short:"s" long:"silent" description:"suppress chunk overview output"`
	Args      struct {
		Files []string `positional-arg-name:"FILE" description:"diagnostic file(s)"`
	} `positional-args:"yes" required:"yes"`
}

func (decOpts *DecodeCommand) Execute(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unknown argument: %s", args[0])
	}

	output, err := decode(decOpts.Args.Files, decOpts.StartTime, decOpts.EndTime, decOpts.Silent, decOpts.Merge)
	if err != nil {
		return err
	}
	return writeJSONtoFile(output, decOpts.Out)
}

type StatsCommand struct {
	StartTime string `long:"start" value-name:"<TIME>" description:"clip data preceding start time (layout UnixDate)"`
	EndTime   string `long:"end" value-name:"<TIME>" description:"clip data after end time (layout UnixDate)"`
	Out       string `short:"o" long:"out" value-name:"<FILE>" description:"write stats output, in JSON, to given file" required:"true"`
	Args      struct {
		Files []string `positional-arg-name:"FILE" description:"diagnostic file(s)"`
	} `positional-args:"yes" required:"yes"`
}

func (statOpts *StatsCommand) Execute(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unknown argument: %s", args[0])
	}
	output, err := stats(statOpts.Args.Files, statOpts.StartTime, statOpts.EndTime)
	if err != nil {
		return err
	}
	return writeJSONtoFile(output, statOpts.Out)
}

type CompareCommand struct {
	Explicit  bool    `short:"e" long:"explicit" description:"show comparison values for all compared metrics; sorted by score, descending"`
	Threshold float64 `short:"t" long:"threshold" value-name:"<FLOAT>" description:"threshold of deviation in comparison" default:"0.2"`
	Args      struct {
		FileA string `positional-arg-name:"STAT1" description:"statistical file (JSON)"`
		FileB string `positional-arg-name:"STAT2" description:"statistical file (JSON)"`
	} `positional-args:"yes" required:"yes"`
}

func (cmp *CompareCommand) Execute(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unknown argument: %s", args[0])
	}
	ftdc.CmpThreshold = cmp.Threshold
	sa, err := readJSONStats(cmp.Args.FileA)
	if err != nil {
		return err
	}
	sb, err := readJSONStats(cmp.Args.FileB)
	if err != nil {
		return err
	}

	score, scores, ok := ftdc.Proximal(sa, sb)
	sort.Sort(sort.Reverse(scores))
	var msg string
	for _, s := range scores {
		if cmp.Explicit {
			fmt.Printf("%5f: %s\n", s.Score, s.Metric)
		}
		if s.Err != nil {
			msg += s.Err.Error()
		}
	}
	fmt.Fprintln(os.Stderr, msg)
	fmt.Printf("score: %f\n", score)

	result := "FAILURE"
	if ok {
		result = "SUCCESS"
	}
	err = fmt.Errorf("comparison completed. result: %s", result)
	if ok {
		fmt.Fprintln(os.Stderr, err)
		return nil
	}
	return err
}

func readJSONStats(file string) (s ftdc.Stats, err error) {
	f, err := os.Open(file)
	if err != nil {
		return
	}
	defer f.Close()
	err = json.NewDecoder(f).Decode(&s)
	return
}

func parseTimes(tStart, tEnd string) (start, end time.Time, err error) {
	if tStart != "" {
		start, err = time.Parse(time.UnixDate, tStart)
		if err != nil {
			err = fmt.Errorf("error: failed to parse start time '%s': %s", tStart, err)
			return
		}
	} else {
		start = time.Unix(math.MinInt64, 0)
	}
	if tEnd != "" {
		end, err = time.Parse(time.UnixDate, tEnd)
		if err != nil {
			err = fmt.Errorf("error: failed to parse end time '%s': %s", tEnd, err)
			return
		}
	} else {
		end = time.Unix(math.MaxInt64, 0)
	}
	return
}

func stats(files []string, tStart, tEnd string) (interface{}, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("error: must provide FILE")
	}

	start, end, err := parseTimes(tStart, tEnd)
	if err != nil {
		return nil, err
	}

	ss := []ftdc.Stats{}
	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("error: failed to open '%s': %s", file, err)
		}

		cs, err := ftdc.ComputeStatsInterval(f, start, end)
		f.Close()
		if err != nil {
			return nil, err
		}
		ss = append(ss, cs...)
	}

	if len(ss) == 0 {
		return nil, fmt.Errorf("no chunks found")
	}
	return ftdc.MergeStats(ss...), nil
}

func decode(files []string, tStart, tEnd string, silent, shouldMerge bool) (interface{}, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("error: must provide FILE")
	}

	start, end, err := parseTimes(tStart, tEnd)
	if err != nil {
		return nil, err
	}

	cs := []ftdc.Chunk{}
	count := 0
	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("error: failed to open '%s': %s", file, err)
		}

		o := make(chan ftdc.Chunk)
		go func() {
			if err := ftdc.Chunks(f, o); err != nil {
				fmt.Fprintf(os.Stderr, "error: failed to parse chunks: %s\n", err)
			}
		}()

		logChunk := func(c ftdc.Chunk) {
			t := time.Unix(c.Map()["start"].Value/1000, 0).Format(time.UnixDate)
			fmt.Fprintf(os.Stderr, "chunk of file '%s' with %d metrics and %d samples on %s\n",
				file, len(c.Metrics), c.NDeltas, t)
		}

		for c := range o {
			if !c.Clip(start, end) {
				continue
			}
			if !silent {
				logChunk(c)
			}
			cs = append(cs, c)
			count += c.NDeltas
		}
		f.Close()
	}

	if len(cs) == 0 {
		return nil, fmt.Errorf("no chunks found")
	}

	if !silent {
		fmt.Fprintf(os.Stderr, "found %d samples\n", count)
	}

	if shouldMerge {
		total := map[string]ftdc.Metric{}
		for _, c := range cs {
			for _, m := range c.Metrics {
				k := m.Key
				if existing, ok := total[k]; ok {
					// this expects contiguous chunks
					newDeltas := make([]int64, 0, len(existing.Deltas)+len(m.Deltas))
					newDeltas = append(newDeltas, existing.Deltas...)
					newDeltas = append(newDeltas, m.Deltas...)
					total[k] = ftdc.Metric{
						Key:    k,
						Value:  existing.Value,
						Deltas: newDeltas,
					}
				} else {
					total[k] = m
				}
			}
		}
		return total, nil
	}

	return cs, nil
}

func writeJSONtoFile(output interface{}, file string) error {
	of, err := os.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return fmt.Errorf("failed to open write file '%s': %s", file, err)
	}
	defer of.Close()
	enc := json.NewEncoder(of)
	if err := enc.Encode(output); err != nil {
		return fmt.Errorf("failed to write output to '%s': %s", file, err)
	}
	return nil
}
