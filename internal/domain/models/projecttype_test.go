package models

import "testing"

func TestProjectTypeValidate(t *testing.T) {
	schema := []SchemaSlot{
		{Key: "intake", Label: "Intake"},
		{Key: "user_story", Label: "User Story"},
	}

	tests := []struct {
		name     string
		workflow []WorkflowStep
		wantErr  bool
	}{
		{
			name:     "valid edge",
			workflow: []WorkflowStep{{FromKey: "intake", ToKey: "user_story", AiTemplateID: "tpl1"}},
		},
		{
			name: "no workflow",
		},
		{
			name:     "unknown source key",
			workflow: []WorkflowStep{{FromKey: "blueprint", ToKey: "user_story", AiTemplateID: "tpl1"}},
			wantErr:  true,
		},
		{
			name:     "unknown target key",
			workflow: []WorkflowStep{{FromKey: "intake", ToKey: "task", AiTemplateID: "tpl1"}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt := &ProjectType{
				Name:           "Software Delivery",
				DocumentSchema: schema,
				Workflow:       tt.workflow,
			}
			err := pt.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() = nil, want error for dangling workflow key")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestStepsFromAndSlotByKey(t *testing.T) {
	pt := &ProjectType{
		DocumentSchema: []SchemaSlot{
			{Key: "intake", Label: "Intake"},
			{Key: "user_story", Label: "User Story"},
			{Key: "task", Label: "Task", IsTask: true},
		},
		Workflow: []WorkflowStep{
			{FromKey: "intake", ToKey: "user_story", AiTemplateID: "tpl1"},
			{FromKey: "user_story", ToKey: "task", AiTemplateID: "tpl2"},
		},
	}

	steps := pt.StepsFrom("intake")
	if len(steps) != 1 || steps[0].ToKey != "user_story" {
		t.Errorf("StepsFrom(intake) = %+v, want one edge to user_story", steps)
	}
	if steps := pt.StepsFrom("task"); len(steps) != 0 {
		t.Errorf("StepsFrom(task) = %+v, want none", steps)
	}

	slot, ok := pt.SlotByKey("task")
	if !ok || !slot.IsTask {
		t.Errorf("SlotByKey(task) = %+v, %v; want task slot", slot, ok)
	}
	if _, ok := pt.SlotByKey("blueprint"); ok {
		t.Error("SlotByKey(blueprint) found a slot that should not exist")
	}
}
