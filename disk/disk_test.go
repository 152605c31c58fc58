package disk

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/sergev/fluxscan/bitbuf"
	"github.com/sergev/fluxscan/builder"
	"github.com/sergev/fluxscan/geom"
	"github.com/sergev/fluxscan/scan"
	"github.com/sergev/fluxscan/track"
)

func newTestDisk(opts scan.Options) *Disk {
	logger := hclog.NewNullLogger()
	return New(scan.New(opts, logger, nil), logger)
}

// image returns disk image bytes where every sector starts with its
// block number.
func image(blocks int) []byte {
	p := make([]byte, blocks*512)
	for i := 0; i < blocks; i++ {
		p[i*512] = byte(i)
		p[i*512+1] = byte(i >> 8)
	}
	return p
}

func TestNewDisk(t *testing.T) {
	d := New(nil, nil)
	id, ok := d.Metadata()["id"]
	if !ok {
		t.Fatalf("no id in metadata")
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("id %q: %v", id, err)
	}
	if d.Type() != UnknownType || d.Cyls() != 0 || d.Heads() != 0 {
		t.Errorf("new disk: type %q, %d cyls, %d heads", d.Type(), d.Cyls(), d.Heads())
	}

	d.SetType("SCP")
	d.SetMetadata("comment", "test")
	if d.Type() != "SCP" || d.Metadata()["comment"] != "test" {
		t.Errorf("metadata not stored")
	}

	other := New(nil, nil)
	if other.Metadata()["id"] == id {
		t.Errorf("two disks share id %s", id)
	}
}

func TestFormatDisk(t *testing.T) {
	d := newTestDisk(scan.DefaultOptions())
	f := geom.GetFormat(geom.FormatPC720)
	f.Cyls = 3

	if err := d.Format(f, image(f.TotalSectors())); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if d.Cyls() != 3 || d.Heads() != 2 {
		t.Errorf("formatted %d cyls, %d heads", d.Cyls(), d.Heads())
	}
	if d.Layout.Cyls != 3 {
		t.Errorf("Layout.Cyls = %d", d.Layout.Cyls)
	}

	// Cyl 1 head 0 is the third track.
	s, err := d.GetSector(geom.Header{Cyl: 1, Head: 0, Sector: 4, Size: 2})
	if err != nil {
		t.Fatalf("GetSector: %v", err)
	}
	if got := int(s.DataCopy(0)[0]); got != 2*9+3 {
		t.Errorf("sector holds block %d, expected %d", got, 2*9+3)
	}

	if d.Find(geom.Header{Cyl: 1, Head: 0, Sector: 10, Size: 2}) != nil {
		t.Errorf("found a sector past the end of the track")
	}
	if _, err := d.GetSector(geom.Header{Cyl: 1, Head: 0, Sector: 10, Size: 2}); !errors.Is(err, track.ErrSectorNotFound) {
		t.Errorf("GetSector of a missing sector: %v", err)
	}

	f.Cyls = 0
	if err := d.Format(f, nil); !errors.Is(err, geom.ErrBadGeometry) {
		t.Errorf("Format with no cylinders: %v", err)
	}
}

func TestEachOrder(t *testing.T) {
	d := newTestDisk(scan.DefaultOptions())
	f := geom.GetFormat(geom.FormatPC720)
	f.Cyls = 2
	if err := d.Format(f, nil); err != nil {
		t.Fatalf("Format: %v", err)
	}

	tests := []struct {
		cylsFirst bool
		want      []geom.CylHead
	}{
		{false, []geom.CylHead{{Cyl: 0, Head: 0}, {Cyl: 0, Head: 1}, {Cyl: 1, Head: 0}, {Cyl: 1, Head: 1}}},
		{true, []geom.CylHead{{Cyl: 0, Head: 0}, {Cyl: 1, Head: 0}, {Cyl: 0, Head: 1}, {Cyl: 1, Head: 1}}},
	}
	for _, tt := range tests {
		var got []geom.CylHead
		err := d.Each(func(ch geom.CylHead, tr *track.Track) error {
			if tr.Len() != 9 {
				t.Errorf("%s has %d sectors", ch, tr.Len())
			}
			got = append(got, ch)
			return nil
		}, tt.cylsFirst)
		if err != nil {
			t.Fatalf("Each: %v", err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("Each visited %v, expected %v", got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("cylsFirst %v: visit %d = %s, expected %s", tt.cylsFirst, i, got[i], tt.want[i])
			}
		}
	}

	stop := errors.New("stop")
	calls := 0
	err := d.Each(func(geom.CylHead, *track.Track) error {
		calls++
		return stop
	}, false)
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Each after an error: %v, %d calls", err, calls)
	}
}

func TestReadDecodesBitstream(t *testing.T) {
	d := newTestDisk(scan.DefaultOptions())
	ch := geom.NewCylHead(4, 1)

	src := track.New()
	src.Format(ch, geom.GetFormat(geom.FormatPC720))
	src.Populate(image(9))
	d.WriteBitstream(ch, builder.BuildBitstream(ch, src))

	if d.Read(ch).Kind() != KindBitstream {
		t.Errorf("Kind() = %s", d.Read(ch).Kind())
	}
	tr, err := d.ReadTrack(ch)
	if err != nil {
		t.Fatalf("ReadTrack: %v", err)
	}
	if tr.Len() != 9 {
		t.Fatalf("decoded %d sectors", tr.Len())
	}

	s := d.Find(geom.Header{Cyl: 4, Head: 1, Sector: 7, Size: 2})
	if s == nil {
		t.Fatalf("sector 7 not found")
	}
	if !bytes.Equal(s.DataCopy(0), image(9)[6*512:7*512]) {
		t.Errorf("sector 7 data differs")
	}
}

func TestReadDecodesFlux(t *testing.T) {
	d := newTestDisk(scan.DefaultOptions())
	ch := geom.NewCylHead(0, 0)

	src := track.New()
	src.Format(ch, geom.GetFormat(geom.FormatPC720))
	d.WriteFlux(ch, builder.BuildFlux(ch, src), false)

	b, err := d.ReadBitstream(ch)
	if err != nil {
		t.Fatalf("ReadBitstream: %v", err)
	}
	if b.DataRate != geom.DataRate250K || b.Size() == 0 {
		t.Errorf("bitstream at %s with %d bits", b.DataRate, b.Size())
	}

	tr, err := d.ReadTrack(ch)
	if err != nil || tr.Len() != 9 {
		t.Errorf("ReadTrack = %v, %v", tr, err)
	}
}

func TestReadUnsupported(t *testing.T) {
	opts := scan.DefaultOptions()
	opts.GCR = true
	d := newTestDisk(opts)

	var raw []byte
	for i := 0; i < 12; i++ {
		raw = append(raw, 0xff, 0xd5, 0xaa, 0x96, 0x00, 0xde, 0xaa, 0xeb)
	}
	ch := geom.NewCylHead(0, 0)
	d.WriteBitstream(ch, bitbuf.FromBytes(geom.DataRate250K, raw, len(raw)*8))

	if _, err := d.ReadTrack(ch); !errors.Is(err, scan.ErrUnsupportedFormat) {
		t.Errorf("ReadTrack error = %v, expected ErrUnsupportedFormat", err)
	}
}

func TestFlipAndResize(t *testing.T) {
	d := newTestDisk(scan.DefaultOptions())
	tr := track.New()
	tr.Format(geom.NewCylHead(0, 0), geom.GetFormat(geom.FormatPC720))
	d.WriteTrack(geom.NewCylHead(0, 0), tr)

	d.FlipSides()
	if d.Heads() != 2 || d.Read(geom.NewCylHead(0, 1)).Kind() != KindTrack {
		t.Errorf("track not moved to head 1")
	}
	if d.Read(geom.NewCylHead(0, 1)).CylHead.Head != 1 {
		t.Errorf("track data still names head 0")
	}

	d.Resize(10, 1)
	if d.Cyls() != 10 || d.Heads() != 1 {
		t.Errorf("resized to %d cyls, %d heads", d.Cyls(), d.Heads())
	}
	if d.Read(geom.NewCylHead(0, 0)).Kind() != KindNone {
		t.Errorf("head 0 track should be empty")
	}

	d.Resize(0, 0)
	if d.Cyls() != 0 {
		t.Errorf("Resize(0, 0) left %d cyls", d.Cyls())
	}
}

func TestMergeDisks(t *testing.T) {
	ch := geom.NewCylHead(2, 0)
	half := func(ids ...int) *track.Track {
		tr := track.New()
		for _, id := range ids {
			s := track.NewSector(geom.DataRate250K, geom.EncodingMFM, geom.Header{Cyl: 2, Sector: id, Size: 2})
			s.Add(bytes.Repeat([]byte{byte(id)}, 512), false, geom.DAM)
			tr.Add(s)
		}
		return tr
	}

	a := newTestDisk(scan.DefaultOptions())
	a.WriteTrack(ch, half(1, 2, 3))
	b := newTestDisk(scan.DefaultOptions())
	b.WriteTrack(ch, half(4, 5))
	b.WriteTrack(geom.NewCylHead(3, 0), half(6))

	a.Merge(b)
	a.Merge(a)

	tr, err := a.ReadTrack(ch)
	if err != nil {
		t.Fatalf("ReadTrack: %v", err)
	}
	if tr.Len() != 5 {
		t.Errorf("merged track has %d sectors, expected 5", tr.Len())
	}
	if a.Cyls() != 4 {
		t.Errorf("merged disk has %d cyls", a.Cyls())
	}

	a.Clear()
	if a.Cyls() != 0 {
		t.Errorf("Clear left %d cyls", a.Cyls())
	}
}
