// qkdbench runs rounds of BB84 key negotiation for each entry in the
// cartesian product of a collection of tuning parameters, e.g. qubit count
// and check-bit fraction, and outputs a CSV of relevant statistics for each
// combination, e.g. mean key length and tamper-detection rate.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"text/template"

	flag "github.com/spf13/pflag"
	"gonum.org/v1/gonum/stat"

	"github.com/qubitlabs/qkd/bb84"
	"github.com/qubitlabs/qkd/bb84/bitmap"
	"github.com/qubitlabs/qkd/bb84/channel"
	"github.com/qubitlabs/qkd/bb84/entropy"
	"github.com/qubitlabs/qkd/bb84/qubit"
)

var (
	ns = flag.IntSlice("n", []int{bb84.DefaultKeyLength},
		"The number of qubits to transmit per negotiation.")
	checkFractions = flag.Float64Slice("checkFraction", []float64{bb84.DefaultCheckFraction},
		"The fraction of sifted bits to sacrifice for tamper detection.")
	trials = flag.Int("trials", 20, "Negotiations to run per parameterization.")
	seed   = flag.Int64("seed", 42, "Base PRNG seed.")
	eve    = flag.Bool("eve", false,
		"Interpose an intercept-resend eavesdropper on the quantum channel.")
)

var columns = []string{
	"N", "CheckFraction", "Eavesdropped", "Trials",
	"MeanKeyBits", "StdDevKeyBits", "DetectionRate",
	"MessagesPerParty", "MeanClassicalBytes",
}

// An experiment packages together the result of benchmarking a single
// parameterization for easy formatting.
type experiment struct {
	N             int
	CheckFraction float64
	Eavesdropped  bool
	Trials        int

	MeanKeyBits        float64
	StdDevKeyBits      float64
	DetectionRate      float64
	MessagesPerParty   int
	MeanClassicalBytes float64
}

func main() {
	flag.Parse()
	fmt.Println(strings.Join(columns, ","))
	tmpl := template.Must(template.New("line").Parse(lineTmpl()))

	runSeed := *seed
	for _, n := range *ns {
		for _, frac := range *checkFractions {
			exp, err := runExperiment(n, frac, *trials, runSeed, *eve)
			if err != nil {
				log.Fatalf("benchmarking n=%d frac=%v: %v", n, frac, err)
			}
			if err := tmpl.Execute(os.Stdout, exp); err != nil {
				log.Fatalf("formatting results: %v", err)
			}
			fmt.Println()
			runSeed += int64(*trials)
		}
	}
}

func runExperiment(n int, frac float64, trials int, seed int64, eavesdrop bool) (*experiment, error) {
	exp := &experiment{N: n, CheckFraction: frac, Eavesdropped: eavesdrop, Trials: trials}
	var keyBits []float64
	detections := 0
	for i := 0; i < trials; i++ {
		res, err := runOnce(n, frac, seed+int64(i), eavesdrop)
		if errors.Is(err, bb84.ErrTamperDetected) {
			detections++
			continue
		}
		if err != nil {
			return nil, err
		}
		keyBits = append(keyBits, float64(res.key.Size()))
		exp.MessagesPerParty = res.stats.MessagesSent + res.stats.MessagesReceived
		exp.MeanClassicalBytes += float64(res.stats.BytesRead + res.stats.BytesWritten)
	}
	if len(keyBits) > 0 {
		exp.MeanKeyBits = stat.Mean(keyBits, nil)
		exp.StdDevKeyBits = stat.StdDev(keyBits, nil)
		exp.MeanClassicalBytes /= float64(len(keyBits))
	}
	exp.DetectionRate = float64(detections) / float64(trials)
	return exp, nil
}

type runResult struct {
	key   bitmap.Dense
	stats bb84.Stats
}

func runOnce(n int, frac float64, seed int64, eavesdrop bool) (runResult, error) {
	ctx := context.Background()
	otp := make([]byte, 16*n+(1<<12))
	rand.New(rand.NewSource(seed)).Read(otp)

	oracle := qubit.NewSimulator(rand.New(rand.NewSource(seed + 1)))
	upstream := channel.New[qubit.Qubit]()
	downstream := upstream
	if eavesdrop {
		downstream = channel.New[qubit.Qubit]()
		tap := qubit.NewSimulator(rand.New(rand.NewSource(seed + 2)))
		go interceptResend(ctx, upstream, downstream, tap, entropy.NewSource(seed+3), n)
	}
	classical := channel.New[[]byte]()

	common := bb84.PeerOpts{
		Oracle:        oracle,
		Classical:     classical,
		KeyLength:     n,
		CheckFraction: frac,
	}
	sOpts := common
	sOpts.Quantum = upstream
	sOpts.Rand = entropy.NewSource(seed + 4)
	sOpts.Secret = bytes.NewReader(otp)
	sender, err := bb84.NewSender(sOpts)
	if err != nil {
		return runResult{}, err
	}
	rOpts := common
	rOpts.Quantum = downstream
	rOpts.Rand = entropy.NewSource(seed + 5)
	rOpts.Secret = bytes.NewReader(otp)
	receiver, err := bb84.NewReceiver(rOpts)
	if err != nil {
		return runResult{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	type outcome struct {
		res runResult
		err error
	}
	sCh := make(chan outcome, 1)
	rCh := make(chan outcome, 1)
	go func() {
		k, s, err := sender.NegotiateKey(ctx)
		if err != nil {
			cancel()
		}
		sCh <- outcome{runResult{key: k, stats: s}, err}
	}()
	go func() {
		k, s, err := receiver.NegotiateKey(ctx)
		if err != nil {
			cancel()
		}
		rCh <- outcome{runResult{key: k, stats: s}, err}
	}()
	sOut, rOut := <-sCh, <-rCh
	if sOut.err != nil {
		return sOut.res, sOut.err
	}
	return sOut.res, rOut.err
}

// interceptResend measures every qubit in a random basis and re-encodes the
// result, the textbook attack BB84's check bits exist to catch.
func interceptResend(ctx context.Context, in, out *channel.Channel[qubit.Qubit], oracle qubit.Oracle, rnd *entropy.Source, n int) {
	bases := rnd.Bits(n)
	for i := 0; i < n; i++ {
		q, err := in.Receive(ctx)
		if err != nil {
			return
		}
		basis := qubit.FromBit(bases.Get(i))
		bit, err := oracle.Measure(q, basis)
		if err != nil {
			return
		}
		forged, err := oracle.Encode(bit, basis)
		if err != nil {
			return
		}
		if err := out.Send(ctx, forged); err != nil {
			return
		}
	}
}

func lineTmpl() string {
	var cols []string
	for _, c := range columns {
		cols = append(cols, fmt.Sprintf("{{.%s}}", c))
	}
	return strings.Join(cols, ",")
}
