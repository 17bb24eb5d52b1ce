package analysis

import (
	"math"
	"strings"
	"testing"

	"github.com/rewired-gh/rescatter/internal/binning"
	"github.com/rewired-gh/rescatter/internal/kinematics"
	"github.com/rewired-gh/rescatter/internal/record"
	"github.com/rewired-gh/rescatter/internal/testkit/simlog"
)

var kstar = []int{313, -313, 323, -323}

func newDetection() *Detection {
	return &Detection{Schema: record.OSCAR2013Extended(), Resonances: kstar, DecayType: 5, Width: 1}
}

func scan(t *testing.T, a Analyzer, b *simlog.Builder) *FileResult {
	t.Helper()
	res, err := a.Scan(b.Reader())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return res
}

func TestDetection_RescatteringCancelsPair(t *testing.T) {
	b := simlog.New().
		EventIn(0).
		Decay(simlog.Row{T: 10, ID: 1, PDG: 313}, simlog.Row{ID: 2, PDG: 321}, simlog.Row{ID: 3, PDG: -211}).
		Decay(simlog.Row{T: 10, ID: 4, PDG: -313}, simlog.Row{ID: 5, PDG: -321}, simlog.Row{ID: 6, PDG: 211}).
		Scatter(12, 2, 99).
		Scatter(13, 3, 98).
		EventOut(0, simlog.Row{T: 20, ID: 5, PDG: -321}, simlog.Row{T: 20, ID: 6, PDG: 211})

	res := scan(t, newDetection(), b)
	if res.Acc.Total[10] != 2 {
		t.Errorf("Expected total[10] = 2, got %d", res.Acc.Total[10])
	}
	if res.Acc.Detected[10] != 1 {
		t.Errorf("Expected detected[10] = 1, got %d", res.Acc.Detected[10])
	}
	if res.Acc.Decays != 2 || res.Acc.Rescattered != 1 {
		t.Errorf("Expected 2 decays and 1 rescattering, got %d and %d", res.Acc.Decays, res.Acc.Rescattered)
	}
	if res.Acc.Events != 1 {
		t.Errorf("Expected 1 event, got %d", res.Acc.Events)
	}
}

func TestDetection_ObservesBeforeRegistering(t *testing.T) {
	// The second decay block carries id 2 again: it cancels the first decay
	// and then registers its own.
	b := simlog.New().
		Decay(simlog.Row{T: 10, ID: 1, PDG: 313}, simlog.Row{ID: 2, PDG: 321}, simlog.Row{ID: 3, PDG: -211}).
		Decay(simlog.Row{T: 11, ID: 7, PDG: 323}, simlog.Row{ID: 2, PDG: 321}, simlog.Row{ID: 8, PDG: 111})

	res := scan(t, newDetection(), b)
	if res.Acc.Detected[10] != 0 {
		t.Errorf("Expected first decay cancelled, detected[10] = %d", res.Acc.Detected[10])
	}
	if res.Acc.Detected[11] != 1 || res.Acc.Total[11] != 1 {
		t.Errorf("Expected second decay counted, got total %d detected %d", res.Acc.Total[11], res.Acc.Detected[11])
	}
}

func TestDetection_SkipsBadInput(t *testing.T) {
	b := simlog.New().
		Raw("# interaction in x out 2 type 5").
		Raw(simlog.Row{T: 1, ID: 1, PDG: 313}.String()).
		Raw(simlog.Row{T: 1, ID: 2, PDG: 321}.String()).
		Raw(simlog.Row{T: 1, ID: 3, PDG: -211}.String()).
		Interaction(1, 2, 5, simlog.Row{T: 2, ID: 4, PDG: 313}, simlog.Row{T: 2, ID: 5, PDG: 321}).
		Interaction(1, 2, 5,
			simlog.Row{T: 3, ID: 9, PDG: 113}, simlog.Row{T: 3, ID: 10, PDG: 211}, simlog.Row{T: 3, ID: 11, PDG: -211}).
		Raw("this is not a row").
		Decay(simlog.Row{T: 4, ID: 12, PDG: 313}, simlog.Row{ID: 13, PDG: 321}, simlog.Row{ID: 14, PDG: -211})

	res := scan(t, newDetection(), b)
	if res.Stats.MalformedHeaders != 1 {
		t.Errorf("Expected 1 malformed header, got %d", res.Stats.MalformedHeaders)
	}
	if res.Stats.MalformedRows != 1 {
		t.Errorf("Expected 1 malformed row, got %d", res.Stats.MalformedRows)
	}
	if len(res.Acc.Total) != 1 || res.Acc.Total[4] != 1 {
		t.Errorf("Expected only the decay at t=4, got %v", res.Acc.Total)
	}
}

func TestDetection_Reduce(t *testing.T) {
	clean := simlog.New().
		Decay(simlog.Row{T: 10, ID: 1, PDG: 313}, simlog.Row{ID: 2, PDG: 321}, simlog.Row{ID: 3, PDG: -211})
	dirty := simlog.New().
		Decay(simlog.Row{T: 10, ID: 1, PDG: 313}, simlog.Row{ID: 2, PDG: 321}, simlog.Row{ID: 3, PDG: -211}).
		Scatter(11, 3, 50)

	d := newDetection()
	result, err := d.Reduce([]*FileResult{scan(t, d, clean), scan(t, d, dirty)})
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if result.Acc.Total[10] != 2 || result.Acc.Detected[10] != 1 {
		t.Fatalf("Expected merged total 2 detected 1, got %d %d", result.Acc.Total[10], result.Acc.Detected[10])
	}
	series := result.Series[0]
	if series.Name != DetectionSeries || series.Len() != 1 {
		t.Fatalf("Unexpected series: %+v", series)
	}
	if series.Points[0].X != 10.5 || series.Points[0].Y != 0.5 {
		t.Errorf("Expected (10.5, 0.5), got %+v", series.Points[0])
	}
	if !result.Estimate.Defined || result.Estimate.Value != 0.5 {
		t.Errorf("Expected estimate 0.5, got %+v", result.Estimate)
	}
}

func TestDetection_NonFiniteTimeIsSkipped(t *testing.T) {
	clean := simlog.New().
		Decay(simlog.Row{T: 10, ID: 1, PDG: 313}, simlog.Row{ID: 2, PDG: 321}, simlog.Row{ID: 3, PDG: -211})
	bad := simlog.New().
		Interaction(1, 2, 5,
			simlog.Row{T: math.NaN(), ID: 11, PDG: 313},
			simlog.Row{T: 5, ID: 12, PDG: 321},
			simlog.Row{T: 5, ID: 13, PDG: -211}).
		Raw(strings.Replace(simlog.Row{T: 7, ID: 20, PDG: 211}.String(), "7", "+Inf", 1)).
		Scatter(6, 12, 40)

	d := newDetection()
	badRes := scan(t, d, bad)
	if badRes.Stats.MalformedRows != 2 {
		t.Errorf("Expected 2 malformed rows, got %d", badRes.Stats.MalformedRows)
	}
	if len(badRes.Acc.Total) != 0 || len(badRes.Acc.Detected) != 0 || badRes.Acc.Decays != 0 {
		t.Errorf("Expected no registered decays, got total %v detected %v", badRes.Acc.Total, badRes.Acc.Detected)
	}

	result, err := d.Reduce([]*FileResult{scan(t, d, clean), badRes})
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if result.Acc.Total[10] != 1 || result.Acc.Detected[10] != 1 {
		t.Errorf("Expected the clean file to survive, got total %v detected %v", result.Acc.Total, result.Acc.Detected)
	}
	if !result.Estimate.Defined || result.Estimate.Value != 1 {
		t.Errorf("Expected estimate 1, got %+v", result.Estimate)
	}
}

func TestDetection_NoDecaysIsUndefined(t *testing.T) {
	d := newDetection()
	result, err := d.Reduce(nil)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if result.Estimate.Defined {
		t.Error("Expected undefined estimate with no decays")
	}
	if result.Series[0].Len() != 0 {
		t.Errorf("Expected empty series, got %d points", result.Series[0].Len())
	}
}

func TestNetGain(t *testing.T) {
	b := simlog.New().
		Raw(simlog.Row{T: 0.5, ID: 1, PDG: 313, Form: 0.5, LastColl: 0.1}.String()).
		Raw(simlog.Row{T: 1.2, ID: 2, PDG: 313, LastColl: 1.2}.String()).
		Raw(simlog.Row{T: 1.8, ID: 3, PDG: 313, Form: 1.8, LastColl: 1.8}.String()).
		Raw(simlog.Row{T: 3, ID: 4, PDG: 113, LastColl: 3}.String()).
		Raw(simlog.Row{T: 2, ID: 5, PDG: 211, Form: 2, LastColl: 2}.String()).
		Raw("0.5 1 2 3")

	n := &NetGain{
		Schema:  record.OSCAR2013Extended(),
		Species: []Species{{Name: "K*", PDG: 313}, {Name: "rho", PDG: 113}, {Name: "phi", PDG: 333}},
		Width:   1,
	}
	res := scan(t, n, b)
	if res.Acc.Gain["K*"][0.5] != 1 || res.Acc.Gain["K*"][1.8] != 1 {
		t.Errorf("Unexpected K* gain: %v", res.Acc.Gain["K*"])
	}
	if res.Acc.Decay["K*"][1.2] != 1 || res.Acc.Decay["K*"][1.8] != 1 {
		t.Errorf("Unexpected K* decay: %v", res.Acc.Decay["K*"])
	}
	if res.Stats.MalformedRows != 1 {
		t.Errorf("Expected the short row to be malformed, got %d", res.Stats.MalformedRows)
	}

	result, err := n.Reduce([]*FileResult{res})
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if len(result.Series) != 3 {
		t.Fatalf("Expected 3 series, got %d", len(result.Series))
	}
	ks := result.Series[0]
	if ks.Len() != 1 || ks.Points[0].X != 1.5 || ks.Points[0].Y != -1 {
		t.Errorf("Expected K* bin 1 net rate -1 and bin 0 dropped, got %+v", ks.Points)
	}
	rho := result.Series[1]
	if rho.Len() != 1 || rho.Points[0].X != 3.5 || rho.Points[0].Y != -1 {
		t.Errorf("Unexpected rho series: %+v", rho.Points)
	}
	if result.Series[2].Len() != 0 {
		t.Errorf("Expected empty phi series, got %+v", result.Series[2].Points)
	}
	if result.Estimate != nil {
		t.Error("Net gain has no headline estimate")
	}
}

func kaonChannel() Channel {
	return Channel{
		Name:            "kstar_kminus",
		Resonances:      kstar,
		DaughterSpecies: []int{321, -321},
		TargetSpecies:   []int{321, -321},
		PairRule:        binning.PairUnseen,
	}
}

func TestChannelRatio_Unseen(t *testing.T) {
	b := simlog.New().
		EventIn(0).
		Decay(simlog.Row{T: 1, ID: 1, PDG: 313}, simlog.Row{ID: 2, PDG: 321}, simlog.Row{ID: 3, PDG: -211}).
		Decay(simlog.Row{T: 1, ID: 4, PDG: 313}, simlog.Row{ID: 5, PDG: 321}, simlog.Row{ID: 6, PDG: -211}).
		EventOut(0,
			simlog.Row{T: 30, ID: 2, PDG: 321},
			simlog.Row{T: 30, ID: 7, PDG: -321},
			simlog.Row{T: 30, ID: 8, PDG: 211}).
		EventIn(1).
		EventOut(1, simlog.Row{T: 30, ID: 2, PDG: 321}).
		EventIn(2).
		EventOut(2, simlog.Row{T: 30, ID: 9, PDG: 211})

	c := &ChannelRatio{Schema: record.OSCAR2013Extended(), DecayType: 5, Channel: kaonChannel()}
	res := scan(t, c, b)

	if res.Acc.Events != 3 {
		t.Errorf("Expected 3 events, got %d", res.Acc.Events)
	}
	if len(res.Values) != 2 || res.Values[0] != 0.5 || res.Values[1] != 0 {
		t.Errorf("Expected per-event ratios [0.5 0], got %v", res.Values)
	}
	if res.Undefined != 1 {
		t.Errorf("Expected 1 undefined event, got %d", res.Undefined)
	}
	if m := res.Mean(); !m.Defined || m.Value != 0.25 {
		t.Errorf("Expected file mean 0.25, got %+v", m)
	}
}

func TestChannelRatio_BothSeenWithCuts(t *testing.T) {
	ch := Channel{
		Name:            "kstar_photon",
		Resonances:      append(append([]int{}, kstar...), 10313, -10313, 20313, -20313),
		DaughterSpecies: []int{311, -311, 22},
		TargetSpecies:   []int{22},
		PairRule:        binning.PairBothSeen,
		Cuts:            kinematics.Cuts{Enabled: true, EtaMin: -0.5, EtaMax: 0.5, PtMin: 0.2, PtMax: 5},
	}
	b := simlog.New().
		EventIn(0).
		Decay(simlog.Row{T: 1, ID: 1, PDG: 313}, simlog.Row{ID: 2, PDG: 311}, simlog.Row{ID: 3, PDG: 22}).
		Decay(simlog.Row{T: 1, ID: 4, PDG: 10313}, simlog.Row{ID: 5, PDG: 311}, simlog.Row{ID: 6, PDG: 22}).
		EventOut(0,
			simlog.Row{T: 30, ID: 2, PDG: 311, Px: 1},
			simlog.Row{T: 30, ID: 3, PDG: 22, Px: 1},
			simlog.Row{T: 30, ID: 5, PDG: 311, Px: 1},
			simlog.Row{T: 30, ID: 6, PDG: 22, Px: 0.1, Pz: 10},
			simlog.Row{T: 30, ID: 7, PDG: 22, Py: 1})

	c := &ChannelRatio{Schema: record.OSCAR2013Extended(), DecayType: 5, Channel: ch}
	res := scan(t, c, b)
	if len(res.Values) != 1 || res.Values[0] != 0.5 {
		t.Errorf("Expected ratio 1/2, got %v", res.Values)
	}
}

func TestChannelRatio_Reduce(t *testing.T) {
	c := &ChannelRatio{Channel: kaonChannel()}
	files := []*FileResult{
		{Path: "a", Values: []float64{1, 1, 1}},
		{Path: "b", Values: nil},
		{Path: "c", Values: []float64{0}},
	}
	for _, f := range files {
		f.Acc = newFileResult().Acc
	}
	result, err := c.Reduce(files)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if len(result.Scalars) != 2 || result.Scalars[0] != 1 || result.Scalars[1] != 0 {
		t.Errorf("Expected per-file series [1 0], got %v", result.Scalars)
	}
	if !result.Estimate.Defined || result.Estimate.Value != 0.5 {
		t.Errorf("Expected per-file average 0.5, got %+v", result.Estimate)
	}
}

func TestChannelValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Channel)
		wantErr bool
	}{
		{"valid", func(c *Channel) {}, false},
		{"no name", func(c *Channel) { c.Name = "" }, true},
		{"no resonances", func(c *Channel) { c.Resonances = nil }, true},
		{"no targets", func(c *Channel) { c.TargetSpecies = nil }, true},
		{"bad rule", func(c *Channel) { c.PairRule = "either" }, true},
		{"bad cuts", func(c *Channel) { c.Cuts = kinematics.Cuts{Enabled: true, EtaMin: 1, EtaMax: -1} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := kaonChannel()
			tt.modify(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMultiplicity(t *testing.T) {
	b := simlog.New().
		EventIn(0).
		EventOut(0,
			simlog.Row{ID: 1, PDG: 211, Charge: 1, Px: 1},
			simlog.Row{ID: 2, PDG: -211, Charge: -1, Px: 1, Pz: 20},
			simlog.Row{ID: 3, PDG: 111, Charge: 0, Px: 1}).
		EventIn(1).
		EventOut(1, simlog.Row{ID: 1, PDG: 2212, Charge: 1, Py: 1})

	m := &Multiplicity{Schema: record.OSCAR2013Extended()}
	res := scan(t, m, b)
	if len(res.Values) != 2 || res.Values[0] != 2 || res.Values[1] != 1 {
		t.Errorf("Expected [2 1], got %v", res.Values)
	}

	m.Cuts = kinematics.Cuts{Enabled: true, EtaMin: -0.5, EtaMax: 0.5}
	res = scan(t, m, b)
	if len(res.Values) != 2 || res.Values[0] != 1 || res.Values[1] != 1 {
		t.Errorf("Expected [1 1] with eta cut, got %v", res.Values)
	}

	result, err := m.Reduce([]*FileResult{res})
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if !result.Estimate.Defined || result.Estimate.Value != 1 {
		t.Errorf("Expected multiplicity 1, got %+v", result.Estimate)
	}
}

func TestMultiplicity_ReduceWeighsEvents(t *testing.T) {
	charged := func(id int) simlog.Row { return simlog.Row{ID: id, PDG: 211, Charge: 1, Px: 1} }
	one := simlog.New().EventOut(0, charged(1))
	three := simlog.New().
		EventOut(0, charged(1), charged(2), charged(3)).
		EventOut(1, charged(1), charged(2), charged(3)).
		EventOut(2, charged(1), charged(2), charged(3))

	m := &Multiplicity{Schema: record.OSCAR2013Extended()}
	result, err := m.Reduce([]*FileResult{scan(t, m, one), scan(t, m, three)})
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if len(result.Scalars) != 2 || result.Scalars[0] != 1 || result.Scalars[1] != 3 {
		t.Errorf("Expected per-file means [1 3], got %v", result.Scalars)
	}
	if !result.Estimate.Defined || result.Estimate.Value != 2.5 || result.Estimate.Samples != 4 {
		t.Errorf("Expected 2.5 over 4 events, got %+v", result.Estimate)
	}
	if result.Acc.Events != 4 {
		t.Errorf("Expected 4 events, got %d", result.Acc.Events)
	}
}

func TestTemporal(t *testing.T) {
	log := strings.Join([]string{
		"OSC1997A",
		"0 3 0.0 0.0",
		"1 313 0 1.0 0.0 0.0 1.3 0.892 0 0 0 0.5D+01",
		"2 -321 0 0.0 1.0 0.0 1.1 0.494 0 0 0 0.5D+01",
		"3 -321 0 0.0 0.0 1.0 1.1 0.494 0 0 0 0.5D+01",
		"1 2 0.0 0.0",
		"4 313 0 1.0 0.0 0.0 1.3 0.892 0 0 0 6.0",
		"5 -321 0 1.0 0.0 5.0 5.2 0.494 0 0 0 6.0",
	}, "\n")

	tm := &Temporal{
		Schema:  record.OSCAR1999(),
		Species: []Species{{Name: "K*0", PDG: 313}, {Name: "K-", PDG: -321}},
		EtaMax:  0.5,
	}
	res, err := tm.Scan(strings.NewReader(log))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if res.Acc.Events != 2 {
		t.Errorf("Expected 2 events, got %d", res.Acc.Events)
	}
	if res.Acc.Species["K*0"][5] != 1 || res.Acc.Species["K*0"][6] != 1 {
		t.Errorf("Unexpected K*0 counts: %v", res.Acc.Species["K*0"])
	}
	// id 3 moves along the beam axis (pT = 0) and id 5 is forward: neither
	// is counted.
	if res.Acc.Species["K-"][5] != 1 || res.Acc.Species["K-"][6] != 0 {
		t.Errorf("Unexpected K- counts: %v", res.Acc.Species["K-"])
	}

	result, err := tm.Reduce([]*FileResult{res})
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if len(result.Series) != 2 {
		t.Fatalf("Expected 2 series, got %d", len(result.Series))
	}
	if got := result.Series[0].Points; len(got) != 2 || got[0].Y != 0.5 || got[1].Y != 0.5 {
		t.Errorf("Expected K*0 normalised to 0.5 per event, got %+v", got)
	}

	empty, err := tm.Reduce(nil)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if empty.Estimate.Defined || len(empty.Series) != 0 {
		t.Errorf("Expected undefined result without events, got %+v", empty)
	}
}

func TestFileMeanUndefined(t *testing.T) {
	f := &FileResult{}
	if f.Mean().Defined {
		t.Error("Expected undefined mean for a file without samples")
	}
	if math.IsNaN(f.Mean().Value) {
		t.Error("Undefined mean must not leak NaN")
	}
}
