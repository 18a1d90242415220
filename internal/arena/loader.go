package arena

import (
	"fmt"
	"log"
	"math"
	"os"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"shooter-arena/internal/config"
)

// meshInstance is one node's worth of world-space vertices before rescaling.
type meshInstance struct {
	name  string
	verts []Vec3
	tris  [][3]int
}

// spawnMarker is a named empty node that marks a spawn location.
type spawnMarker struct {
	name string
	pos  Vec3
}

type collector struct {
	instances []meshInstance
	spawns    []spawnMarker
}

// Load parses the map asset and bakes the immutable arena geometry.
// A missing file degrades to the perimeter-only fallback; an asset with no
// mesh data is a hard error because the simulation cannot run on it.
func Load(cfg config.ArenaConfig) (*StaticGeometry, error) {
	if cfg.MapPath == "" {
		log.Printf("⚠️ No map asset configured, using perimeter-only arena")
		return Fallback(cfg), nil
	}
	if _, err := os.Stat(cfg.MapPath); err != nil {
		log.Printf("⚠️ Map asset %q not found, using perimeter-only arena", cfg.MapPath)
		return Fallback(cfg), nil
	}

	doc, err := gltf.Open(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("open map asset %q: %w", cfg.MapPath, err)
	}

	geo, err := bake(doc, cfg)
	if err != nil {
		return nil, fmt.Errorf("bake map asset %q: %w", cfg.MapPath, err)
	}

	log.Printf("🗺️ Arena baked: %d buildings, %d triangles, %d spawn points",
		len(geo.Buildings), len(geo.Triangles), len(geo.SpawnPoints))
	return geo, nil
}

// bake walks the scene graph, rescales everything into arena space, and
// classifies each mesh box into floor, clutter, or building.
func bake(doc *gltf.Document, cfg config.ArenaConfig) (*StaticGeometry, error) {
	c := &collector{}

	if len(doc.Scenes) > 0 {
		scene := doc.Scenes[0]
		if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
			scene = doc.Scenes[*doc.Scene]
		}
		for _, root := range scene.Nodes {
			c.walk(doc, root, identityMat())
		}
	}

	total := 0
	for _, inst := range c.instances {
		total += len(inst.verts)
	}
	if total == 0 {
		return nil, fmt.Errorf("asset contains no mesh data")
	}

	// Whole-model bounds decide the uniform rescale into arena space.
	bounds := emptyAABB()
	for _, inst := range c.instances {
		for _, v := range inst.verts {
			bounds.expand(v)
		}
	}
	span := math.Max(bounds.SpanX(), bounds.SpanZ())
	span = math.Max(span, 1e-6)
	scale := cfg.Size / span

	center := bounds.Center()
	toWorld := func(v Vec3) Vec3 {
		return Vec3{
			X: (v.X - center.X) * scale,
			Y: (v.Y-bounds.MinY)*scale + cfg.FloorY,
			Z: (v.Z - center.Z) * scale,
		}
	}

	geo := &StaticGeometry{
		MinX:   (bounds.MinX - center.X) * scale,
		MaxX:   (bounds.MaxX - center.X) * scale,
		MinZ:   (bounds.MinZ - center.Z) * scale,
		MaxZ:   (bounds.MaxZ - center.Z) * scale,
		FloorY: cfg.FloorY,
	}

	for _, inst := range c.instances {
		world := make([]Vec3, len(inst.verts))
		box := emptyAABB()
		for i, v := range inst.verts {
			world[i] = toWorld(v)
			box.expand(world[i])
		}

		switch classifyBox(box, cfg.Size) {
		case kindBuilding:
			geo.Buildings = append(geo.Buildings, box)
			for _, t := range inst.tris {
				geo.Triangles = append(geo.Triangles, Triangle{
					A: world[t[0]], B: world[t[1]], C: world[t[2]],
				})
			}
		default:
			// Floors and clutter never collide.
		}
	}

	geo.Walls = PerimeterWalls(geo.MinX, geo.MaxX, geo.MinZ, geo.MaxZ,
		cfg.WallThickness, cfg.WallHeight, cfg.FloorY)

	geo.SpawnPoints = dedupeSpawns(c.spawns, toWorld, cfg.FloorY)
	if len(geo.SpawnPoints) == 0 {
		log.Printf("⚠️ Map asset has no spawn markers, using fallback ring")
		size := math.Min(geo.MaxX-geo.MinX, geo.MaxZ-geo.MinZ)
		geo.SpawnPoints = fallbackSpawns(size, cfg.FloorY)
	}

	return geo, nil
}

// walk accumulates node transforms down the graph and collects mesh
// primitives and spawn markers.
func (c *collector) walk(doc *gltf.Document, nodeIdx int, parent mat4) {
	if nodeIdx < 0 || nodeIdx >= len(doc.Nodes) {
		return
	}
	node := doc.Nodes[nodeIdx]
	world := mulMat(parent, nodeMatrix(node))

	if isSpawnMarker(node.Name) {
		c.spawns = append(c.spawns, spawnMarker{
			name: node.Name,
			pos:  transformPoint(world, Vec3{}),
		})
	}

	if node.Mesh != nil && *node.Mesh < len(doc.Meshes) {
		c.collectMesh(doc, doc.Meshes[*node.Mesh], node.Name, world)
	}

	for _, child := range node.Children {
		c.walk(doc, child, world)
	}
}

// collectMesh reads every triangle primitive of a mesh into one instance.
func (c *collector) collectMesh(doc *gltf.Document, mesh *gltf.Mesh, name string, world mat4) {
	inst := meshInstance{name: name}

	for _, prim := range mesh.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles {
			continue
		}
		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok || posIdx >= len(doc.Accessors) {
			continue
		}
		positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
		if err != nil {
			log.Printf("⚠️ Skipping unreadable primitive in mesh %q: %v", name, err)
			continue
		}

		base := len(inst.verts)
		for _, p := range positions {
			v := Vec3{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
			inst.verts = append(inst.verts, transformPoint(world, v))
		}

		if prim.Indices != nil && *prim.Indices < len(doc.Accessors) {
			indices, err := modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
			if err != nil {
				log.Printf("⚠️ Skipping unreadable indices in mesh %q: %v", name, err)
				continue
			}
			for i := 0; i+2 < len(indices); i += 3 {
				inst.tris = append(inst.tris, [3]int{
					base + int(indices[i]),
					base + int(indices[i+1]),
					base + int(indices[i+2]),
				})
			}
		} else {
			for i := 0; i+2 < len(positions); i += 3 {
				inst.tris = append(inst.tris, [3]int{base + i, base + i + 1, base + i + 2})
			}
		}
	}

	if len(inst.verts) > 0 {
		c.instances = append(c.instances, inst)
	}
}

// isSpawnMarker matches the node naming convention for spawn locations.
func isSpawnMarker(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "player_spawn") || strings.HasPrefix(lower, "spawn_")
}

// dedupeSpawns rescales markers into world space and drops near-duplicates,
// preserving discovery order.
func dedupeSpawns(markers []spawnMarker, toWorld func(Vec3) Vec3, floorY float64) []Vec3 {
	seen := make(map[[2]int64]bool, len(markers))
	out := make([]Vec3, 0, len(markers))
	for _, m := range markers {
		p := toWorld(m.pos)
		p.Y = floorY
		key := [2]int64{int64(math.Round(p.X * 10)), int64(math.Round(p.Z * 10))}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// =============================================================================
// Column-major 4x4 transforms (glTF convention)
// =============================================================================

type mat4 [16]float64

func identityMat() mat4 {
	return mat4{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

// nodeMatrix returns the node's local transform. glTF nodes carry either an
// explicit matrix or TRS components; zero values fall back to identity.
func nodeMatrix(n *gltf.Node) mat4 {
	m := mat4(n.Matrix)
	if m != (mat4{}) && m != identityMat() {
		return m
	}

	t := n.Translation
	r := n.Rotation
	s := n.Scale
	if r == ([4]float64{}) {
		r = [4]float64{0, 0, 0, 1}
	}
	if s == ([3]float64{}) {
		s = [3]float64{1, 1, 1}
	}
	return trsMatrix(t, r, s)
}

// trsMatrix composes translation, quaternion rotation and scale.
func trsMatrix(t [3]float64, q [4]float64, s [3]float64) mat4 {
	x, y, z, w := q[0], q[1], q[2], q[3]

	r00 := 1 - 2*(y*y+z*z)
	r01 := 2 * (x*y - z*w)
	r02 := 2 * (x*z + y*w)
	r10 := 2 * (x*y + z*w)
	r11 := 1 - 2*(x*x+z*z)
	r12 := 2 * (y*z - x*w)
	r20 := 2 * (x*z - y*w)
	r21 := 2 * (y*z + x*w)
	r22 := 1 - 2*(x*x+y*y)

	return mat4{
		r00 * s[0], r10 * s[0], r20 * s[0], 0,
		r01 * s[1], r11 * s[1], r21 * s[1], 0,
		r02 * s[2], r12 * s[2], r22 * s[2], 0,
		t[0], t[1], t[2], 1,
	}
}

func mulMat(a, b mat4) mat4 {
	var out mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				sum += a[k*4+r] * b[c*4+k]
			}
			out[c*4+r] = sum
		}
	}
	return out
}

func transformPoint(m mat4, v Vec3) Vec3 {
	return Vec3{
		X: m[0]*v.X + m[4]*v.Y + m[8]*v.Z + m[12],
		Y: m[1]*v.X + m[5]*v.Y + m[9]*v.Z + m[13],
		Z: m[2]*v.X + m[6]*v.Y + m[10]*v.Z + m[14],
	}
}
