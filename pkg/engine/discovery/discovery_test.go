package discovery

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackgraft/stackgraft/pkg/cfn"
)

func parse(t *testing.T, src string) *cfn.Template {
	t.Helper()
	tpl, err := cfn.Parse([]byte(src), "test.yaml")
	require.NoError(t, err)
	return tpl
}

func newTestFinder() *Finder {
	return NewFinder(slog.New(slog.DiscardHandler))
}

func TestFindRoleByTrustPrincipal(t *testing.T) {
	tpl := parse(t, `AWSTemplateFormatVersion: '2010-09-09'
Resources:
  SomethingElse:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument:
        Version: '2012-10-17'
        Statement:
          - Effect: Allow
            Principal:
              Service: ecs-tasks.amazonaws.com
            Action: sts:AssumeRole
  WorkerRole:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument:
        Version: '2012-10-17'
        Statement:
          - Effect: Allow
            Principal:
              Service: lambda.amazonaws.com
            Action: sts:AssumeRole
`)
	name, ok := newTestFinder().FindRole(tpl)
	require.True(t, ok)
	require.Equal(t, "WorkerRole", name)
}

func TestFindRoleByNameHint(t *testing.T) {
	tpl := parse(t, `AWSTemplateFormatVersion: '2010-09-09'
Resources:
  MyFunctionRole:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument:
        Version: '2012-10-17'
        Statement:
          - Effect: Allow
            Principal:
              Service: ecs-tasks.amazonaws.com
            Action: sts:AssumeRole
`)
	name, ok := newTestFinder().FindRole(tpl)
	require.True(t, ok)
	require.Equal(t, "MyFunctionRole", name)
}

func TestFindRoleByActionPrefix(t *testing.T) {
	tpl := parse(t, `AWSTemplateFormatVersion: '2010-09-09'
Resources:
  OpaqueRole:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument:
        Version: '2012-10-17'
        Statement:
          - Effect: Allow
            Principal:
              Service: ecs-tasks.amazonaws.com
            Action: sts:AssumeRole
      Policies:
        - PolicyName: Caller
          PolicyDocument:
            Version: '2012-10-17'
            Statement:
              - Effect: Allow
                Action: lambda:InvokeFunction
                Resource: '*'
`)
	name, ok := newTestFinder().FindRole(tpl)
	require.True(t, ok)
	require.Equal(t, "OpaqueRole", name)
}

func TestFindRoleNotFound(t *testing.T) {
	tpl := parse(t, `AWSTemplateFormatVersion: '2010-09-09'
Resources:
  Bucket:
    Type: AWS::S3::Bucket
`)
	_, ok := newTestFinder().FindRole(tpl)
	require.False(t, ok)
}

func TestFindRoleFirstMatchWinsInDocumentOrder(t *testing.T) {
	tpl := parse(t, `AWSTemplateFormatVersion: '2010-09-09'
Resources:
  FirstLambdaRole:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument:
        Version: '2012-10-17'
        Statement:
          - Effect: Allow
            Principal:
              Service: lambda.amazonaws.com
            Action: sts:AssumeRole
  SecondLambdaRole:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument:
        Version: '2012-10-17'
        Statement:
          - Effect: Allow
            Principal:
              Service: lambda.amazonaws.com
            Action: sts:AssumeRole
`)
	name, ok := newTestFinder().FindRole(tpl)
	require.True(t, ok)
	require.Equal(t, "FirstLambdaRole", name)
}

func TestFindRoleDeterministic(t *testing.T) {
	tpl := parse(t, `AWSTemplateFormatVersion: '2010-09-09'
Resources:
  HandlerRole:
    Type: AWS::IAM::Role
    Properties:
      AssumeRolePolicyDocument:
        Version: '2012-10-17'
        Statement:
          - Effect: Allow
            Principal:
              Service: lambda.amazonaws.com
            Action: sts:AssumeRole
`)
	f := newTestFinder()
	first, ok := f.FindRole(tpl)
	require.True(t, ok)
	for i := 0; i < 5; i++ {
		again, ok := f.FindRole(tpl)
		require.True(t, ok)
		require.Equal(t, first, again)
	}
}
