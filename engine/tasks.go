// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"unsafe"

	"github.com/gviegas/taa/driver"
	"github.com/gviegas/taa/engine/internal/graph"
	"github.com/gviegas/taa/engine/internal/shader"
)

// Task names.
const (
	taskUpload  = "upload"
	taskScene   = "scene"
	taskLights  = "lights"
	taskResolve = "resolve"
	taskTonemap = "tonemap"
)

// buildGraph declares the tasks of a frame and compiles
// them into a task graph.
func (r *Renderer) buildGraph() (*graph.Graph, error) {
	b := graph.NewBuilder(&r.reg, graph.Options{
		Reorder: r.cfg.Reorder,
		Name:    "frame",
		Logger:  r.log,
	})
	for _, t := range [...]graph.Task{
		{
			Name: taskUpload,
			Uses: []graph.Use{
				{Res: r.xformID, Mode: graph.CopyWrite, Stage: driver.SCopy},
				{Res: r.posID, Mode: graph.CopyWrite, Stage: driver.SCopy},
				{Res: r.normID, Mode: graph.CopyWrite, Stage: driver.SCopy},
				{Res: r.indexID, Mode: graph.CopyWrite, Stage: driver.SCopy},
				{Res: r.lightID, Mode: graph.CopyWrite, Stage: driver.SCopy},
			},
			Run: r.upload,
		},
		{
			Name: taskScene,
			Uses: []graph.Use{
				{Res: r.xformID, Mode: graph.ConstRead, Stage: driver.SVertexShading},
				{Res: r.posID, Mode: graph.VertexRead, Stage: driver.SVertexInput},
				{Res: r.normID, Mode: graph.VertexRead, Stage: driver.SVertexInput},
				{Res: r.indexID, Mode: graph.IndexRead, Stage: driver.SVertexInput},
				{Res: r.sceneID, Mode: graph.ColorWrite, Stage: driver.SColorOutput},
				{Res: r.velocity.Current(), Mode: graph.ColorWrite, Stage: driver.SColorOutput},
				{Res: r.depthID, Mode: graph.DSWrite, Stage: driver.SDSOutput},
			},
			Run: r.drawScene,
		},
		{
			Name: taskLights,
			Uses: []graph.Use{
				{Res: r.xformID, Mode: graph.ConstRead, Stage: driver.SVertexShading},
				{Res: r.lightID, Mode: graph.ShaderRead, Stage: driver.SVertexShading},
				{Res: r.sceneID, Mode: graph.ColorWrite, Stage: driver.SColorOutput},
				{Res: r.depthID, Mode: graph.DSWrite, Stage: driver.SDSOutput},
			},
			Run: r.drawLights,
		},
		{
			Name: taskResolve,
			Uses: []graph.Use{
				{Res: r.xformID, Mode: graph.ConstRead, Stage: driver.SComputeShading},
				{Res: r.sceneID, Mode: graph.ShaderRead, Stage: driver.SComputeShading},
				{Res: r.color.History(), Mode: graph.ShaderRead, Stage: driver.SComputeShading},
				{Res: r.velocity.Current(), Mode: graph.ShaderRead, Stage: driver.SComputeShading},
				{Res: r.velocity.History(), Mode: graph.ShaderRead, Stage: driver.SComputeShading},
				{Res: r.depthID, Mode: graph.DSRead, Stage: driver.SComputeShading},
				{Res: r.color.Current(), Mode: graph.ShaderWrite, Stage: driver.SComputeShading},
			},
			Run: r.resolve,
		},
		{
			Name: taskTonemap,
			Uses: []graph.Use{
				{Res: r.color.Current(), Mode: graph.ShaderRead, Stage: driver.SFragmentShading},
				{Res: r.swapID, Mode: graph.ColorWrite, Stage: driver.SColorOutput},
			},
			Run: r.tonemap,
		},
	} {
		if err := b.Add(t); err != nil {
			return nil, err
		}
	}
	if err := b.Present(r.swapID); err != nil {
		return nil, err
	}
	return b.Compile()
}

// upload copies the transforms and, when a new scene
// was loaded, the scene data from staging buffers.
func (r *Renderer) upload(rt *graph.Runtime) error {
	cb := rt.Cmd()
	f := &r.frames[r.slot]
	if r.uploadXform.take() {
		cb.CopyBuffer(&driver.BufferCopy{
			From: f.staging,
			To:   rt.Buffer(r.xformID),
			Size: int64(unsafe.Sizeof(shader.TransformLayout{})),
		})
	}
	if r.uploadScene.take() && r.staged != nil {
		s := r.staged
		for _, c := range s.copies {
			cb.CopyBuffer(&driver.BufferCopy{
				From:    s.buf,
				FromOff: c.off,
				To:      rt.Buffer(c.id),
				Size:    c.size,
			})
		}
		f.garbage = append(f.garbage, s.buf)
		r.staged = nil
	}
	return nil
}

func (r *Renderer) viewport(cb driver.CmdBuffer) {
	cb.SetViewport([]driver.Viewport{{Width: float32(r.width), Height: float32(r.height), Zfar: 1}})
}

// drawScene renders the scene color, velocity and
// depth.
func (r *Renderer) drawScene(rt *graph.Runtime) error {
	pl, err := r.pipeline(shader.Scene)
	if err != nil {
		return err
	}
	cb := rt.Cmd()
	q := r.slot*queryCount + queryGeometry
	cb.ResetQueries(r.query, r.slot*queryCount, queryCount)
	cb.WriteTimestamp(r.query, driver.SNone, q)
	r.frames[r.slot].queried = true

	cb.BeginPass(r.width, r.height, 1, []driver.ColorTarget{
		{
			Color: rt.View(r.sceneID),
			Load:  driver.LClear,
			Store: driver.SStore,
			Clear: driver.ClearFloat32(0, 0, 0, 1),
		},
		{
			Color: rt.View(r.velocity.Current()),
			Load:  driver.LClear,
			Store: driver.SStore,
		},
	}, &driver.DSTarget{
		DS:     rt.View(r.depthID),
		LoadD:  driver.LClear,
		StoreD: driver.SStore,
		ClearD: 1,
	})
	cb.SetPipeline(pl)
	r.viewport(cb)
	cb.SetVertexBuf(0, []driver.Buffer{rt.Buffer(r.posID), rt.Buffer(r.normID)}, []int64{0, 0})
	cb.SetIndexBuf(driver.Index32, rt.Buffer(r.indexID), 0)
	img := r.color.Index()
	for _, c := range r.scene.cmds {
		r.table.SetGraph(cb, r.slot, c.object, img)
		if c.indexed {
			cb.DrawIndexed(c.count, 1, c.first, c.vertOff, 0)
		} else {
			cb.Draw(c.count, 1, c.first, 0)
		}
	}
	cb.EndPass()
	cb.WriteTimestamp(r.query, driver.SColorOutput|driver.SDSOutput, q+1)
	return nil
}

// drawLights draws the debug shapes of the lights over
// the scene color.
func (r *Renderer) drawLights(rt *graph.Runtime) error {
	n := len(r.scene.lights)
	if n == 0 {
		return nil
	}
	pl, err := r.pipeline(shader.Lights)
	if err != nil {
		return err
	}
	cb := rt.Cmd()
	cb.BeginPass(r.width, r.height, 1, []driver.ColorTarget{
		{
			Color: rt.View(r.sceneID),
			Load:  driver.LLoad,
			Store: driver.SStore,
		},
	}, &driver.DSTarget{
		DS:     rt.View(r.depthID),
		LoadD:  driver.LLoad,
		StoreD: driver.SStore,
	})
	cb.SetPipeline(pl)
	r.viewport(cb)
	r.table.SetGraph(cb, r.slot, 0, r.color.Index())
	cb.Draw(shader.CubeVertices, n, 0, 0)
	cb.EndPass()
	return nil
}

// resolve combines the scene color with the history
// into the current color.
func (r *Renderer) resolve(rt *graph.Runtime) error {
	p := r.table.Resolve(r.slot)
	p.SetClear(r.clearHistory.take())
	p.SetMaxSamples(float32(r.cfg.MaxSamples))
	p.SetVelocityScale(r.cfg.VelocityScale)
	pl, err := r.pipeline(shader.Resolve)
	if err != nil {
		return err
	}
	cb := rt.Cmd()
	q := r.slot*queryCount + queryResolve
	cb.SetPipeline(pl)
	r.table.SetComp(cb, r.slot, r.color.Index())
	cb.WriteTimestamp(r.query, driver.SNone, q)
	cb.Dispatch(
		(r.width+shader.ResolveGroupX-1)/shader.ResolveGroupX,
		(r.height+shader.ResolveGroupY-1)/shader.ResolveGroupY,
		1,
	)
	cb.WriteTimestamp(r.query, driver.SComputeShading, q+1)
	return nil
}

// tonemap maps the current color into the swapchain
// image.
func (r *Renderer) tonemap(rt *graph.Runtime) error {
	pl, err := r.pipeline(shader.Tonemap)
	if err != nil {
		return err
	}
	cb := rt.Cmd()
	cb.BeginPass(r.width, r.height, 1, []driver.ColorTarget{
		{
			Color: rt.View(r.swapID),
			Load:  driver.LDontCare,
			Store: driver.SStore,
		},
	}, nil)
	cb.SetPipeline(pl)
	r.viewport(cb)
	r.table.SetGraph(cb, r.slot, 0, r.color.Index())
	cb.Draw(3, 1, 0, 0)
	cb.EndPass()
	return nil
}
