package registry_test

import (
	"fmt"

	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/refl"
	"github.com/plus3/reflecs/registry"
)

// ExampleRegistry_Register shows struct, tag and enum registration against
// one world.
func ExampleRegistry_Register() {
	w := ecs.NewWorld()
	reg := registry.New(w)

	stamina := reg.Register(refl.StructOf[Stamina](), true)
	marker := reg.Register(refl.StructOf[Marker](), true)
	color := reg.Register(colorType(), true)

	for _, id := range []ecs.Id{stamina, marker, color} {
		rt, _ := reg.Info(id)
		fmt.Printf("%s size=%d tag=%v\n", rt.Type.Name(), rt.Size, rt.IsTag)
	}
	fmt.Println(w.Path(reg.EnumConstant(colorType(), int64(Blue))))

	// Output:
	// registry_test.Stamina size=8 tag=false
	// registry_test.Marker size=0 tag=true
	// registry_test.Color size=1 tag=false
	// registry_test.Color::Blue
}
