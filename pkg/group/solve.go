package group

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/dd0wney/procline/pkg/network"
)

// Options bound how far a solution may stray from an exact balance.
type Options struct {
	// ResidualTolerance is relative to max(1, |pinned value|).
	ResidualTolerance float64
	// RankTolerance is the singular value cutoff relative to the largest one.
	RankTolerance float64
	// Strict turns an inconsistent solution into an error.
	Strict bool
}

// DefaultOptions mirrors config.DefaultEngineConfig.
func DefaultOptions() Options {
	return Options{ResidualTolerance: 1e-9, RankTolerance: 1e-12}
}

// Solution holds the value of every variable for one pinned solve.
type Solution struct {
	Values   map[Variable]float64
	Residual float64
	Rank     int

	// Inconsistent is set when the residual exceeds tolerance.
	Inconsistent bool
	// Underdetermined is set when the pinned system still has free variables;
	// the minimum-norm split was chosen.
	Underdetermined bool
}

// Solve pins cause to value and solves the system in the least-squares sense.
// The pseudo-inverse yields the minimum-norm answer when the system is rank
// deficient.
func (s *System) Solve(cause Variable, value float64, opts Options) (*Solution, error) {
	pin, ok := s.index[cause]
	if !ok {
		return nil, network.NewError("Solve").Group(s.Group).Cause(network.ErrInvalidGroupTopology).
			Context("%s is not a variable of the group", cause).Err()
	}
	if opts.RankTolerance <= 0 {
		opts.RankTolerance = DefaultOptions().RankTolerance
	}
	if opts.ResidualTolerance <= 0 {
		opts.ResidualTolerance = DefaultOptions().ResidualTolerance
	}

	rows, cols := s.A.Dims()
	aug := mat.NewDense(rows+1, cols, nil)
	aug.Slice(0, rows, 0, cols).(*mat.Dense).Copy(s.A)
	aug.Set(rows, pin, 1)
	b := mat.NewVecDense(rows+1, nil)
	b.SetVec(rows, value)

	var svd mat.SVD
	if !svd.Factorize(aug, mat.SVDThin) {
		return nil, network.NewError("Solve").Group(s.Group).Cause(network.ErrNumericalInconsistency).
			Context("singular value decomposition failed").Err()
	}
	rank := svd.Rank(opts.RankTolerance)

	var x mat.VecDense
	svd.SolveVecTo(&x, b, rank)

	var r mat.VecDense
	r.MulVec(aug, &x)
	r.SubVec(&r, b)
	residual := mat.Norm(&r, 2)

	sol := &Solution{
		Values:          make(map[Variable]float64, cols),
		Residual:        residual,
		Rank:            rank,
		Inconsistent:    residual > opts.ResidualTolerance*math.Max(1, math.Abs(value)),
		Underdetermined: rank < cols,
	}
	for i, v := range s.Vars {
		sol.Values[v] = x.AtVec(i)
	}

	if sol.Inconsistent && opts.Strict {
		return sol, network.NewError("Solve").Group(s.Group).Cause(network.ErrNumericalInconsistency).
			Context("residual %.3g exceeds tolerance", residual).Err()
	}
	return sol, nil
}

// Rate returns the solved rate of member step id.
func (sol *Solution) Rate(id network.NodeID) float64 {
	return sol.Values[RateVar(id)]
}
