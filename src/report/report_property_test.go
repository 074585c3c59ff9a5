package report

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genPackages generates package lists with arbitrary status mixes.
func genPackages() gopter.Gen {
	return gen.SliceOf(
		gopter.CombineGens(
			gen.Identifier(),
			gen.OneConstOf(Passed, Failed, Pending),
		).Map(func(vals []interface{}) PackageBuild {
			return PackageBuild{
				Name:   vals[0].(string),
				Status: vals[1].(Status),
				System: "x86_64-linux",
			}
		}),
	)
}

func TestSummarizeCountsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("passed + failed + pending == total == len(packages)", prop.ForAll(
		func(pkgs []PackageBuild) bool {
			s := Summarize("abc", pkgs)
			return s.Passed+s.Failed+s.Pending == s.Total && s.Total == len(pkgs)
		},
		genPackages(),
	))

	properties.Property("all_passed iff every package passed", prop.ForAll(
		func(pkgs []PackageBuild) bool {
			s := Summarize("abc", pkgs)
			every := true
			for _, p := range pkgs {
				if p.Status != Passed {
					every = false
				}
			}
			return s.AllPassed == every
		},
		genPackages(),
	))

	properties.Property("assembled reports validate", prop.ForAll(
		func(pkgs []PackageBuild) bool {
			return New("abc", pkgs).Validate() == nil
		},
		genPackages(),
	))

	properties.TestingRun(t)
}
