package viewstate

import (
	"sync"
	"testing"

	"tshirt-designer/core"
)

type fakeReleaser struct {
	mu       sync.Mutex
	released []string
}

func (f *fakeReleaser) Release(ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, ref)
}

func (f *fakeReleaser) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.released)
}

func localRef(name string) core.ImageRef {
	return core.ImageRef{URL: core.LocalRefScheme + name, Local: true, Digest: "d-" + name}
}

func asset(name string) *core.Asset {
	return &core.Asset{Data: []byte(name), MIMEType: "image/jpeg", Digest: "d-" + name}
}

func TestNewStore_Defaults(t *testing.T) {
	s := NewStore(nil)

	if s.Active() != core.Front {
		t.Errorf("Active(): got %s, want front", s.Active())
	}
	if s.Live() != FrontBackDefault {
		t.Errorf("Live(): got %+v, want %+v", s.Live(), FrontBackDefault)
	}
	if s.Color() != core.DefaultColor {
		t.Errorf("Color(): got %q, want %q", s.Color(), core.DefaultColor)
	}
}

func TestSetDesign_DefaultProfiles(t *testing.T) {
	s := NewStore(nil)

	for _, v := range core.Views {
		d, err := s.SetDesign(v, localRef(v.String()), asset(v.String()))
		if err != nil {
			t.Fatalf("SetDesign(%s) failed: %v", v, err)
		}
		want := FrontBackDefault
		if v.IsSleeve() {
			want = SleeveDefault
		}
		if d.Position != want.Position || d.Size != want.Size {
			t.Errorf("SetDesign(%s) placement: got %+v/%+v, want %+v", v, d.Position, d.Size, want)
		}
	}

	if SleeveDefault.Size != (core.Size{Width: 500, Height: 500}) || SleeveDefault.Position != (core.Position{X: 1000, Y: 957}) {
		t.Errorf("sleeve default changed: %+v", SleeveDefault)
	}
	if FrontBackDefault.Size != (core.Size{Width: 150, Height: 150}) || FrontBackDefault.Position != (core.Position{X: 107, Y: 38}) {
		t.Errorf("front/back default changed: %+v", FrontBackDefault)
	}
}

func TestSetDesign_ViewIsolation(t *testing.T) {
	for _, v1 := range core.Views {
		for _, v2 := range core.Views {
			if v1 == v2 {
				continue
			}
			s := NewStore(nil)
			if _, err := s.SetDesign(v2, localRef("first"), asset("first")); err != nil {
				t.Fatalf("SetDesign() failed: %v", err)
			}
			before, _ := s.Design(v2)

			if _, err := s.SetDesign(v1, localRef("second"), asset("second")); err != nil {
				t.Fatalf("SetDesign() failed: %v", err)
			}

			after, ok := s.Design(v2)
			if !ok || after != before {
				t.Errorf("SetDesign(%s) changed %s: %+v -> %+v", v1, v2, before, after)
			}
		}
	}
}

func TestSetDesign_ReplaceKeepsPlacement(t *testing.T) {
	rel := &fakeReleaser{}
	s := NewStore(rel)

	if _, err := s.SetDesign(core.Front, localRef("a"), asset("a")); err != nil {
		t.Fatalf("SetDesign() failed: %v", err)
	}
	moved := core.Position{X: 90, Y: 60}
	grown := core.Size{Width: 180, Height: 180}
	if err := s.UpdatePlacement(core.Front, &moved, &grown); err != nil {
		t.Fatalf("UpdatePlacement() failed: %v", err)
	}

	d, err := s.SetDesign(core.Front, localRef("b"), asset("b"))
	if err != nil {
		t.Fatalf("SetDesign() failed: %v", err)
	}

	if d.Position != moved || d.Size != grown {
		t.Errorf("replacement placement: got %+v/%+v, want %+v/%+v", d.Position, d.Size, moved, grown)
	}
	if d.Image.URL != localRef("b").URL {
		t.Errorf("replacement image: got %q", d.Image.URL)
	}
	if rel.count() != 1 || rel.released[0] != localRef("a").URL {
		t.Errorf("superseded local ref not released: %v", rel.released)
	}
	_, pending := s.Snapshot()
	if pending[core.Front] == nil || string(pending[core.Front].Data) != "b" {
		t.Error("pending asset was not replaced")
	}
}

func TestRemoveDesign_ResetsToDefault(t *testing.T) {
	rel := &fakeReleaser{}
	s := NewStore(rel)

	s.SetDesign(core.Front, localRef("a"), asset("a"))
	moved := core.Position{X: 10, Y: 10}
	s.UpdatePlacement(core.Front, &moved, nil)

	s.RemoveDesign(core.Front)

	if _, ok := s.Design(core.Front); ok {
		t.Error("Design() still present after RemoveDesign()")
	}
	if rel.count() != 1 {
		t.Errorf("RemoveDesign() released %d refs, want 1", rel.count())
	}
	set, pending := s.Snapshot()
	if set.Designs[core.Front] != nil || pending[core.Front] != nil {
		t.Error("RemoveDesign() left design or pending asset behind")
	}
	if s.Live() != FrontBackDefault {
		t.Errorf("Live() after removal: got %+v, want default", s.Live())
	}

	d, _ := s.SetDesign(core.Front, localRef("b"), asset("b"))
	if d.Position != FrontBackDefault.Position {
		t.Errorf("re-upload position: got %+v, want default %+v", d.Position, FrontBackDefault.Position)
	}
}

func TestRemoveDesign_RestorePolicy(t *testing.T) {
	s := NewStore(nil, WithRemovePolicy(RestoreOnRemove))

	s.SetDesign(core.Back, localRef("a"), asset("a"))
	s.SwitchActiveView(core.Back)
	moved := core.Position{X: 20, Y: 30}
	size := core.Size{Width: 100, Height: 100}
	s.UpdatePlacement(core.Back, &moved, &size)

	s.RemoveDesign(core.Back)
	d, _ := s.SetDesign(core.Back, localRef("b"), asset("b"))

	if d.Position != moved || d.Size != size {
		t.Errorf("restore policy placement: got %+v/%+v, want %+v/%+v", d.Position, d.Size, moved, size)
	}
	if s.Live().Position != moved {
		t.Errorf("Live() not restored: %+v", s.Live())
	}
}

func TestUpdatePlacement_ActiveIsLiveUntilFlush(t *testing.T) {
	s := NewStore(nil)
	s.SetDesign(core.Front, localRef("a"), asset("a"))

	pos := core.Position{X: 1, Y: 2}
	if err := s.UpdatePlacement(core.Front, &pos, nil); err != nil {
		t.Fatalf("UpdatePlacement() failed: %v", err)
	}

	if s.Live().Position != pos {
		t.Errorf("Live(): got %+v, want %+v", s.Live().Position, pos)
	}
	set, _ := s.Snapshot()
	if set.Designs[core.Front].Position != pos {
		t.Errorf("Snapshot() did not flush: got %+v", set.Designs[core.Front].Position)
	}
}

func TestUpdatePlacement_RejectsBadSize(t *testing.T) {
	s := NewStore(nil)
	bad := core.Size{Width: 0, Height: 10}
	if err := s.UpdatePlacement(core.Front, nil, &bad); err == nil {
		t.Error("UpdatePlacement() accepted a zero width")
	}
}

func TestUpdatePlacement_InactiveEmptyView(t *testing.T) {
	s := NewStore(nil)
	pos := core.Position{}
	if err := s.UpdatePlacement(core.Back, &pos, nil); err == nil {
		t.Error("UpdatePlacement() on an empty inactive view should fail")
	}
}

func TestAdjustActive(t *testing.T) {
	s := NewStore(nil)

	called := false
	noop := func(view core.ViewID, live Placement, ratio float64) (Placement, error) {
		called = true
		return live, nil
	}
	if _, ok, _ := s.AdjustActive(noop); ok || called {
		t.Errorf("AdjustActive() on an empty view: ok=%v called=%v", ok, called)
	}

	s.SetDesign(core.Front, localRef("a"), asset("a"))
	s.SetDesign(core.Back, localRef("b"), asset("b"))

	moved := Placement{Position: core.Position{X: 5, Y: 6}, Size: core.Size{Width: 60, Height: 60}}
	p, ok, err := s.AdjustActive(func(view core.ViewID, live Placement, ratio float64) (Placement, error) {
		if view != core.Front || live != FrontBackDefault || ratio != 1 {
			t.Errorf("AdjustActive() args: %s %+v %v", view, live, ratio)
		}
		return moved, nil
	})
	if err != nil || !ok || p != moved || s.Live() != moved {
		t.Fatalf("AdjustActive() = %+v, %v, %v; live %+v", p, ok, err, s.Live())
	}
	if back, _ := s.Design(core.Back); back.Position != FrontBackDefault.Position {
		t.Errorf("AdjustActive() touched an inactive view: %+v", back)
	}

	_, ok, err = s.AdjustActive(func(view core.ViewID, live Placement, ratio float64) (Placement, error) {
		return Placement{Size: core.Size{Width: 0, Height: 1}}, nil
	})
	if !ok || err == nil {
		t.Errorf("AdjustActive() accepted a zero width: ok=%v err=%v", ok, err)
	}
	if s.Live() != moved {
		t.Errorf("rejected adjustment changed the live placement: %+v", s.Live())
	}
}

func TestSwitchActiveView_FlushesAndLoads(t *testing.T) {
	s := NewStore(nil)
	s.SetDesign(core.Front, localRef("a"), asset("a"))

	pos := core.Position{X: 55, Y: 66}
	s.UpdatePlacement(core.Front, &pos, nil)

	d, live, err := s.SwitchActiveView(core.RightSleeve)
	if err != nil {
		t.Fatalf("SwitchActiveView() failed: %v", err)
	}
	if d != nil {
		t.Error("empty view returned a design")
	}
	if live != SleeveDefault {
		t.Errorf("empty sleeve live placement: got %+v, want %+v", live, SleeveDefault)
	}

	front, _ := s.Design(core.Front)
	if front.Position != pos {
		t.Errorf("outgoing view not flushed: got %+v, want %+v", front.Position, pos)
	}

	d, live, _ = s.SwitchActiveView(core.Front)
	if d == nil || live.Position != pos {
		t.Errorf("switch back: got %+v, want position %+v", live, pos)
	}
}

func TestScenario_FrontUnaffectedBySleeveEdit(t *testing.T) {
	s := NewStore(nil)

	s.SetDesign(core.Front, localRef("A"), asset("A"))
	if live := s.Live(); live.Position != (core.Position{X: 107, Y: 38}) || live.Size != (core.Size{Width: 150, Height: 150}) {
		t.Fatalf("front after upload: %+v", live)
	}

	s.SwitchActiveView(core.LeftSleeve)
	s.SetDesign(core.LeftSleeve, localRef("B"), asset("B"))
	if live := s.Live(); live.Position != (core.Position{X: 1000, Y: 957}) || live.Size != (core.Size{Width: 500, Height: 500}) {
		t.Fatalf("sleeve after upload: %+v", live)
	}
	moved := core.Position{X: 1100, Y: 1000}
	s.UpdatePlacement(core.LeftSleeve, &moved, nil)

	_, live, _ := s.SwitchActiveView(core.Front)
	if live.Position != (core.Position{X: 107, Y: 38}) || live.Size != (core.Size{Width: 150, Height: 150}) {
		t.Errorf("front after round trip: got %+v", live)
	}
	sleeve, _ := s.Design(core.LeftSleeve)
	if sleeve.Position != moved {
		t.Errorf("sleeve placement lost: got %+v", sleeve.Position)
	}
}

func TestCommitDurable_ReleasesAndSkipsReplaced(t *testing.T) {
	rel := &fakeReleaser{}
	s := NewStore(rel)

	s.SetDesign(core.Front, localRef("a"), asset("a"))
	s.SetDesign(core.Back, localRef("b"), asset("b"))
	_, uploaded := s.Snapshot()

	// back is replaced while the save is in flight
	s.SetDesign(core.Back, localRef("c"), asset("c"))

	var refs [core.NumViews]core.ImageRef
	refs[core.Front] = core.ImageRef{URL: "https://cdn.example/a.jpg", Digest: "d-a"}
	refs[core.Back] = core.ImageRef{URL: "https://cdn.example/b.jpg", Digest: "d-b"}
	s.CommitDurable(uploaded, refs)

	front, _ := s.Design(core.Front)
	if front.Image.Local || front.Image.URL != "https://cdn.example/a.jpg" {
		t.Errorf("front not committed: %+v", front.Image)
	}
	back, _ := s.Design(core.Back)
	if back.Image.URL != localRef("c").URL {
		t.Errorf("newer back image overwritten: %+v", back.Image)
	}

	_, pending := s.Snapshot()
	if pending[core.Front] != nil {
		t.Error("committed view still pending")
	}
	if pending[core.Back] == nil {
		t.Error("replaced view lost its pending asset")
	}
	// a (committed) and b (replaced) released; c still live
	if rel.count() != 2 {
		t.Errorf("released %d refs, want 2: %v", rel.count(), rel.released)
	}
}

func TestReplace_RestoresActiveLivePlacement(t *testing.T) {
	rel := &fakeReleaser{}
	s := NewStore(rel)
	s.SetDesign(core.Front, localRef("a"), asset("a"))

	var set core.DesignSet
	set.TshirtColor = "#800000"
	set.Designs[core.Front] = &core.DesignInstance{
		Image:    core.Durable("https://cdn.example/f.jpg"),
		Position: core.Position{X: 5, Y: 6},
		Size:     core.Size{Width: 120, Height: 60},
	}
	s.Replace(set)

	if s.Live().Position != (core.Position{X: 5, Y: 6}) {
		t.Errorf("Live() after Replace: %+v", s.Live())
	}
	if s.AspectRatio(core.Front) != 2 {
		t.Errorf("AspectRatio(): got %v, want 2", s.AspectRatio(core.Front))
	}
	if s.Color() != "#800000" {
		t.Errorf("Color(): got %q", s.Color())
	}
	if rel.count() != 1 {
		t.Errorf("Replace() released %d refs, want 1", rel.count())
	}
	_, pending := s.Snapshot()
	for _, p := range pending {
		if p != nil {
			t.Error("Replace() kept pending assets")
		}
	}
}

func TestSetColor(t *testing.T) {
	s := NewStore(nil)
	if err := s.SetColor("#ADD8E6"); err != nil {
		t.Fatalf("SetColor() failed: %v", err)
	}
	if s.Color() != "#add8e6" {
		t.Errorf("Color(): got %q", s.Color())
	}
	if err := s.SetColor("blue"); err == nil {
		t.Error("SetColor() accepted a colour name")
	}
}

func TestSetDesign_ConcurrentLastWriteWins(t *testing.T) {
	rel := &fakeReleaser{}
	s := NewStore(rel)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i))
			s.SetDesign(core.Front, localRef(name), asset(name))
		}(i)
	}
	wg.Wait()

	if _, ok := s.Design(core.Front); !ok {
		t.Fatal("no design after concurrent uploads")
	}
	if rel.count() != 19 {
		t.Errorf("released %d superseded refs, want 19", rel.count())
	}
}

func TestParseRemovePolicy(t *testing.T) {
	if p, err := ParseRemovePolicy("restore"); err != nil || p != RestoreOnRemove {
		t.Errorf("ParseRemovePolicy(restore) = %v, %v", p, err)
	}
	if p, err := ParseRemovePolicy(""); err != nil || p != ResetOnRemove {
		t.Errorf("ParseRemovePolicy(\"\") = %v, %v", p, err)
	}
	if _, err := ParseRemovePolicy("keep"); err == nil {
		t.Error("ParseRemovePolicy() accepted an unknown policy")
	}
}
