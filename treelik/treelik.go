/*

Treelik computes the log-likelihood of a nucleotide alignment on a
fixed rooted tree under a substitution model (Felsenstein's pruning
algorithm).

The basic usage of treelik looks like this:

	treelik alignment.fst tree.nwk

, this will compute the likelihood under the JC69 model with uniform
frequencies.

You can change the model and the frequencies:

	treelik -model K80 -kappa 4 -freq FOBS alignment.fst tree.nwk

To see all the options run:

	treelik -h

*/
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"github.com/bjoelle/tree-likelihood/checkpoint"
	"github.com/bjoelle/tree-likelihood/nuc"
	"github.com/bjoelle/tree-likelihood/nucmodel"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("treelik")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("treelik", "phylogenetic likelihood calculator").Version(version)

	// input tree and alignment
	alignmentFileName = app.Arg("alignment", "sequence alignment").Required().ExistingFile()
	treeFileName      = app.Arg("tree", "rooted phylogenetic tree").Required().ExistingFile()

	// model parameters
	model = app.Flag("model", "substitution model (JC69, K80 or GTR)").
		Default("JC69").Enum("JC69", "K80", "GTR")
	kappa = app.Flag("kappa", "transition/transversion rate ratio (K80)").
		Default("4").Float64()
	gtrRates = app.Flag("rates", "comma-separated GTR exchangeabilities "+
		"in the order AC,AG,AT,CG,CT,GT").Default("1,1,1,1,1,1").String()
	freq = app.Flag("freq", "stationary frequencies "+
		"(F0: uniform, FOBS: observed, or a file with four numbers)").Default("F0").String()

	// rate variation
	ncat = app.Flag("ncat", "number of the categories for the discrete "+
		"gamma rate variation across sites (no variation by default)").Default("1").Int()
	alpha = app.Flag("alpha", "shape of the gamma distribution of rates across sites").
		Default("0.5").Float64()

	// technical
	nThreads = app.Flag("nt", "number of threads to use").Int()
	cacheF   = app.Flag("cache", "bolt database caching computed likelihoods").String()

	// input/output
	printSites = app.Flag("sites", "print per-site log-likelihoods").Bool()
	outLogF    = app.Flag("log", "write log to a file").String()
	logLevel   = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()
)

// RunSummary stores the run results for the JSON output.
type RunSummary struct {
	Version            string    `json:"version"`
	CommandLine        []string  `json:"commandLine"`
	NThreads           int       `json:"nThreads"`
	Tree               string    `json:"tree"`
	Model              string    `json:"model"`
	NCat               int       `json:"ncat"`
	LogLikelihood      float64   `json:"logLikelihood"`
	SiteLogLikelihoods []float64 `json:"siteLogLikelihoods,omitempty"`
	Cached             bool      `json:"cached"`
	Time               float64   `json:"time"`
}

// getModelFromString returns a model given its name and the
// stationary frequencies.
func getModelFromString(model string, cf nuc.Frequency) (nucmodel.Model, error) {
	switch model {
	case "JC69":
		log.Info("Using JC69 model")
		return nucmodel.JC69{}, nil
	case "K80":
		log.Infof("Using K80 model, kappa=%v", *kappa)
		return nucmodel.K80{Kappa: *kappa}, nil
	case "GTR":
		rates, err := parseRates(*gtrRates)
		if err != nil {
			return nil, err
		}
		log.Infof("Using GTR model, rates=%v", rates)
		return nucmodel.NewGTR(rates, cf)
	}
	return nil, fmt.Errorf("unknown model specification: %s", model)
}

// parseRates parses six comma-separated GTR exchangeabilities.
func parseRates(s string) (rates [6]float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != len(rates) {
		return rates, fmt.Errorf("need %d rates, got %d", len(rates), len(parts))
	}
	for i, p := range parts {
		rates[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return rates, err
		}
	}
	return rates, nil
}

func run() (summary *RunSummary) {
	startTime := time.Now()
	summary = &RunSummary{}

	data, err := nucmodel.ReadData(*treeFileName, *alignmentFileName, *freq)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("intree=%s", data.Tree)
	log.Debug(data.Tree.FullString())
	log.Debug(data.Freq)
	summary.Tree = data.Tree.String()

	m, err := getModelFromString(*model, data.Freq)
	if err != nil {
		log.Fatal(err)
	}
	summary.Model = m.String()
	summary.NCat = *ncat

	var db *bolt.DB
	if *cacheF != "" {
		db, err = bolt.Open(*cacheF, 0644, nil)
		if err != nil {
			log.Fatal("Error opening cache database:", err)
		}
		defer db.Close()
	}
	store := checkpoint.NewStore(db)
	key := checkpoint.Key(data.Tree.String(), data.Seqs.String(),
		fmt.Sprintf("%s ncat=%d alpha=%v freq=%v", m, *ncat, *alpha, data.Freq))

	res, err := store.Get(key)
	if err != nil {
		log.Error("Error reading cache:", err)
	}
	if res != nil {
		summary.Cached = true
		summary.LogLikelihood = res.LogLikelihood
		if *printSites {
			summary.SiteLogLikelihoods = res.SiteLikelihood
		}
	} else {
		engine := nucmodel.NewEngine(data, m)
		if err := engine.SetRateVariation(*alpha, *ncat); err != nil {
			log.Fatal(err)
		}
		summary.LogLikelihood = engine.Likelihood()
		if *printSites {
			summary.SiteLogLikelihoods = engine.SiteLikelihoods()
		}
		err = store.Save(key, &checkpoint.Result{
			Model:          m.String(),
			LogLikelihood:  summary.LogLikelihood,
			SiteLikelihood: engine.SiteLikelihoods(),
			Time:           time.Now(),
		})
		if err != nil {
			log.Error("Error saving result:", err)
		}
	}

	log.Noticef("lnL=%f", summary.LogLikelihood)
	if *printSites {
		for pos, l := range summary.SiteLogLikelihoods {
			log.Noticef("site %d lnL=%f", pos, l)
		}
	}

	endTime := time.Now()
	deltaT := endTime.Sub(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.Time = deltaT.Seconds()

	return
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	logging.SetLevel(level, "treelik")
	logging.SetLevel(level, "nucmodel")
	logging.SetLevel(level, "checkpoint")

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *nThreads > 0 {
		runtime.GOMAXPROCS(*nThreads)
	}
	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.", effectiveNThreads)

	summary := run()
	summary.NThreads = effectiveNThreads
	summary.Version = version
	summary.CommandLine = os.Args

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}
