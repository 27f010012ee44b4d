package playout

import (
	"encoding/json"
	"fmt"
	"time"
)

// Show is the engine's show object.
type Show struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Instance is the engine's time-bounded container holding playouts for a show.
type Instance struct {
	ID     int       `json:"id"`
	ShowID int       `json:"show_id"`
	Start  time.Time `json:"starts"`
	End    time.Time `json:"ends"`
}

// Playout is one scheduled entry inside an instance. File may be a bare
// numeric track id or an embedded file object depending on the endpoint;
// both decode into FileRef.
type Playout struct {
	ID         int       `json:"id"`
	InstanceID int       `json:"instance_id"`
	File       FileRef   `json:"file"`
	Start      time.Time `json:"starts"`
	End        time.Time `json:"ends"`
}

// TrackID returns the playout's track id, or false when the engine reported
// no file at all.
func (p *Playout) TrackID() (int64, bool) {
	return p.File.ID()
}

// FileObject is the embedded variant of a playout's file field.
type FileObject struct {
	ID       int64   `json:"id"`
	Path     string  `json:"filepath"`
	Duration float64 `json:"length_sec"`
	Exists   bool    `json:"file_exists"`
}

// FileRef is the closed set of shapes the engine uses for a playout's file
// field: absent (null), a bare numeric id, or an embedded file object. The
// variant is resolved once here at the decode boundary.
type FileRef struct {
	id       *int64
	embedded *FileObject
}

func FileRefID(id int64) FileRef         { return FileRef{id: &id} }
func FileRefObject(o FileObject) FileRef { return FileRef{embedded: &o} }

// ID returns the referenced track id under either variant.
func (f FileRef) ID() (int64, bool) {
	switch {
	case f.id != nil:
		return *f.id, true
	case f.embedded != nil:
		return f.embedded.ID, true
	}
	return 0, false
}

// Object returns the embedded file object when the engine sent one.
func (f FileRef) Object() (FileObject, bool) {
	if f.embedded != nil {
		return *f.embedded, true
	}
	return FileObject{}, false
}

func (f *FileRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = FileRef{}
		return nil
	}
	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		f.id = &id
		f.embedded = nil
		return nil
	}
	var obj FileObject
	if err := json.Unmarshal(data, &obj); err == nil {
		f.embedded = &obj
		f.id = nil
		return nil
	}
	return fmt.Errorf("playout: file field has unexpected shape: %s", data)
}

func (f FileRef) MarshalJSON() ([]byte, error) {
	switch {
	case f.embedded != nil:
		return json.Marshal(f.embedded)
	case f.id != nil:
		return json.Marshal(*f.id)
	}
	return []byte("null"), nil
}
